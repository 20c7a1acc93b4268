package providers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"lexrag/internal/util"

	"github.com/ollama/ollama/api"
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
	ErrorConfig    ErrorType = "config"
)

// statusToken finds the HTTP status our provider clients put in their error
// messages ("openai generate error 400: ...", "openai embedding error 503: ...").
var statusToken = regexp.MustCompile(`\berror (\d{3})\b`)

// ClassifyError maps a provider failure onto an ErrorType, preferring the HTTP
// status when one is known over keywords in the message.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	if errors.Is(err, util.ErrConfiguration) {
		return ErrorConfig
	}
	e := strings.ToLower(err.Error())
	if code := statusOf(err, e); code != 0 {
		return classifyStatus(code, e)
	}
	switch {
	case strings.Contains(e, "key missing"), strings.Contains(e, "invalid_api_key"):
		return ErrorConfig
	case strings.Contains(e, "insufficient_quota"), strings.Contains(e, "quota"):
		return ErrorQuota
	case strings.Contains(e, "429"), strings.Contains(e, "rate limit"), strings.Contains(e, "rate_limit"),
		strings.Contains(e, "too many requests"):
		return ErrorRate
	case strings.Contains(e, "context length"), strings.Contains(e, "too long"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"),
		strings.Contains(e, "connection refused"), strings.Contains(e, "connection reset"), strings.Contains(e, "eof"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

func statusOf(err error, msg string) int {
	var se api.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	if m := statusToken.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}

func classifyStatus(code int, msg string) ErrorType {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrorConfig
	case code == http.StatusTooManyRequests:
		if strings.Contains(msg, "quota") {
			return ErrorQuota
		}
		return ErrorRate
	case code == http.StatusRequestTimeout, code >= 500:
		return ErrorTransient
	case strings.Contains(msg, "context length"), strings.Contains(msg, "too long"):
		return ErrorContext
	default:
		return ErrorPermanent
	}
}

// Categorize tags a provider error with the application taxonomy.
func Categorize(err error) error {
	switch ClassifyError(err) {
	case "":
		return nil
	case ErrorConfig:
		if errors.Is(err, util.ErrConfiguration) {
			return err
		}
		return fmt.Errorf("%w: %w", util.ErrConfiguration, err)
	case ErrorRate, ErrorTransient:
		return util.Transient(err)
	default:
		return err
	}
}
