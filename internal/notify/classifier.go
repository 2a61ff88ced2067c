package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"habitpulse/internal/types"
)

// Classification is the user-facing rendering of a failure: a category, a
// fixed localized message, and its icon.
type Classification struct {
	Category types.ErrorCategory
	Message  string
	Icon     string
}

// One fixed message and icon per category. The synchronous action handlers
// surface these verbatim; the sweeps only log.
var categoryRenderings = map[types.ErrorCategory]Classification{
	types.ErrorCategoryConnection: {
		Category: types.ErrorCategoryConnection,
		Message:  "接続エラーが発生しました。しばらくしてからもう一度お試しください。",
		Icon:     "🔌",
	},
	types.ErrorCategoryDataFetch: {
		Category: types.ErrorCategoryDataFetch,
		Message:  "データの取得に失敗しました。しばらくしてからもう一度お試しください。",
		Icon:     "📡",
	},
	types.ErrorCategoryValidation: {
		Category: types.ErrorCategoryValidation,
		Message:  "入力内容に誤りがあります。確認してもう一度お試しください。",
		Icon:     "⚠️",
	},
	types.ErrorCategoryUnknown: {
		Category: types.ErrorCategoryUnknown,
		Message:  "予期しないエラーが発生しました。",
		Icon:     "❓",
	},
}

// Keyword lists scanned against message + type name, in priority order.
var (
	connectionKeywords = []string{"connection", "connect", "timeout", "network", "socket", "dial", "refused", "reset", "unreachable", "broken pipe"}
	dataFetchKeywords  = []string{"fetch", "query", "store", "database", "record", "scan", "row", "sql", "select"}
	validationKeywords = []string{"validation", "invalid", "required", "missing", "malformed", "out of range"}
)

// PoolResetter is the hook into the record-store handle lifecycle. A
// connection-classified error forces the next acquisition through the
// validate-or-recreate probe.
type PoolResetter interface {
	Reset()
}

// ErrorClassifier maps arbitrary failures onto the user-facing category set.
type ErrorClassifier struct {
	pool   PoolResetter
	logger *slog.Logger
}

// NewErrorClassifier creates an ErrorClassifier. pool may be nil when no
// record-store handle is in play (tests, stateless tooling).
func NewErrorClassifier(pool PoolResetter, logger *slog.Logger) *ErrorClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorClassifier{pool: pool, logger: logger}
}

// Classify categorizes err and renders its fixed user-facing message. A
// connection classification additionally resets the cached record-store
// handle.
func (c *ErrorClassifier) Classify(ctx context.Context, err error) Classification {
	category := Categorize(err)

	if category == types.ErrorCategoryConnection && c.pool != nil {
		c.logger.WarnContext(ctx, "connection-classified failure, resetting record-store handle",
			"error", err,
		)
		c.pool.Reset()
	}

	return categoryRenderings[category]
}

// Categorize maps err to its category without side effects.
//
// Order: known connection error types first, then keyword scans of the
// message and concrete type name with connection > data-fetch > validation
// priority, then unknown.
func Categorize(err error) types.ErrorCategory {
	if err == nil {
		return types.ErrorCategoryUnknown
	}

	if isConnectionErrorType(err) {
		return types.ErrorCategoryConnection
	}

	subject := strings.ToLower(errorSubject(err))
	switch {
	case containsAny(subject, connectionKeywords):
		return types.ErrorCategoryConnection
	case containsAny(subject, dataFetchKeywords):
		return types.ErrorCategoryDataFetch
	case containsAny(subject, validationKeywords):
		return types.ErrorCategoryValidation
	default:
		return types.ErrorCategoryUnknown
	}
}

// isConnectionErrorType matches the small set of error types that are
// unambiguously connection failures, anywhere in the wrap chain.
func isConnectionErrorType(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeCircuitOpen {
		return true
	}
	return false
}

// errorSubject concatenates every message and concrete type name in the
// wrap chain so the keyword scan sees the full picture.
func errorSubject(err error) string {
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(&b, "%s %T ", e.Error(), e)
	}
	return b.String()
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
