package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ghe-token-broker/internal/observability"
	"github.com/spec-kit/ghe-token-broker/internal/service"
	apperrors "github.com/spec-kit/ghe-token-broker/pkg/util/errorutil"
)

const (
	// Query parameters the front end reads after the issue-flow redirect.
	ParamToken = "ghtoken"
	ParamError = "ghuser_error"

	msgInvalidBody      = "Invalid request body"
	msgInternalRedirect = "Errore interno"
	msgInternal         = "Internal Server Error"
)

// Flows is what the router needs from the broker service.
type Flows interface {
	Issue(ctx context.Context, code string) (string, error)
	Verify(ctx context.Context, token string) (*service.VerifyResult, error)
}

// Options configures a Router.
type Options struct {
	Flows         Flows
	RedirectURL   string
	AllowedOrigin string
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	// ConfigErr, when set, makes every request answer 500 after logging it.
	ConfigErr error
}

// Router dispatches requests by method: OPTIONS preflight, GET issue, POST verify.
type Router struct {
	flows       Flows
	redirectURL string
	cors        map[string]string
	logger      *zap.Logger
	metrics     *observability.Metrics
	configErr   error
}

// NewRouter builds a router from opts.
func NewRouter(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		flows:       opts.Flows,
		redirectURL: opts.RedirectURL,
		cors: map[string]string{
			"Access-Control-Allow-Origin":  opts.AllowedOrigin,
			"Access-Control-Allow-Headers": "Content-Type",
			"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
		},
		logger:    logger,
		metrics:   opts.Metrics,
		configErr: opts.ConfigErr,
	}
}

// Handle runs one request to completion. It never panics and never returns
// internal error detail to the caller.
func (r *Router) Handle(ctx context.Context, req Request) (resp Response) {
	method := req.resolveMethod()
	ctx = observability.ContextWithRequestID(ctx, req.RequestID)
	logger := r.logger.With(zap.String("request_id", req.RequestID), zap.String("method", method))

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic recovered", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
			err := apperrors.NewInternalError(fmt.Errorf("panic: %v", rec))
			if method == http.MethodGet {
				resp = r.issueError(logger, err)
				return
			}
			resp = r.jsonError(logger, method, err)
		}
	}()

	if r.configErr != nil {
		logger.Error("broker is misconfigured", zap.Error(r.configErr))
		r.metrics.RecordError("/", method, apperrors.CodeConfigError)
		return r.jsonResponse(http.StatusInternalServerError, errorResponse{Error: msgInternal})
	}

	switch method {
	case http.MethodOptions:
		return r.jsonResponse(http.StatusOK, struct{}{})
	case http.MethodGet:
		return r.issue(ctx, logger, req)
	case http.MethodPost:
		return r.verify(ctx, logger, req)
	default:
		return r.jsonError(logger, method, apperrors.NewMethodNotAllowed())
	}
}

func (r *Router) issue(ctx context.Context, logger *zap.Logger, req Request) Response {
	token, err := r.flows.Issue(ctx, req.Query["code"])
	if err != nil {
		return r.issueError(logger, err)
	}
	return r.redirect(ParamToken, token)
}

func (r *Router) issueError(logger *zap.Logger, err error) Response {
	de := apperrors.ToDomainError(err)
	r.metrics.RecordError("/", http.MethodGet, de.Code)

	msg := de.Message
	if de.HTTPStatus >= http.StatusInternalServerError && de.Code == apperrors.CodeInternalError {
		logger.Error("issue flow failed", zap.Error(de))
		msg = msgInternalRedirect
	} else {
		logger.Warn("issue flow rejected", zap.String("code", de.Code), zap.Error(de))
	}
	return r.redirect(ParamError, msg)
}

func (r *Router) verify(ctx context.Context, logger *zap.Logger, req Request) Response {
	raw, err := req.decodedBody()
	if err != nil {
		return r.jsonError(logger, http.MethodPost, apperrors.NewMissingInput(msgInvalidBody))
	}

	var body verifyRequest
	if len(strings.TrimSpace(string(raw))) == 0 || json.Unmarshal(raw, &body) != nil {
		return r.jsonError(logger, http.MethodPost, apperrors.NewMissingInput(msgInvalidBody))
	}

	res, err := r.flows.Verify(ctx, body.Token)
	if err != nil {
		return r.jsonError(logger, http.MethodPost, err)
	}
	return r.jsonResponse(http.StatusOK, verifyResponse{Login: res.Login, SessionToken: res.SessionToken})
}

func (r *Router) jsonError(logger *zap.Logger, method string, err error) Response {
	de := apperrors.ToDomainError(err)
	r.metrics.RecordError("/", method, de.Code)

	if de.HTTPStatus >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(de))
		return r.jsonResponse(http.StatusInternalServerError, errorResponse{Error: msgInternal})
	}
	logger.Info("request rejected", zap.String("code", de.Code), zap.Error(de))
	return r.jsonResponse(de.HTTPStatus, errorResponse{Error: de.Message})
}

func (r *Router) jsonResponse(status int, v any) Response {
	headers := make(map[string]string, len(r.cors)+1)
	for k, val := range r.cors {
		headers[k] = val
	}
	headers["Content-Type"] = "application/json"
	return Response{StatusCode: status, Headers: headers, Body: jsonBody(v)}
}

func (r *Router) redirect(param, value string) Response {
	sep := "?"
	if strings.Contains(r.redirectURL, "?") {
		sep = "&"
	}
	return Response{
		StatusCode: http.StatusFound,
		Headers:    map[string]string{"Location": r.redirectURL + sep + param + "=" + escape(value)},
	}
}

// escape percent-encodes a query value with %20 for spaces.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
