package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ChainDeploy/internal/auth"
	"ChainDeploy/internal/deploy"
	xerrors "ChainDeploy/internal/errors"
	"ChainDeploy/internal/networks"
)

const maxRequestBody = 8 << 20

// NetworkView is the public shape of a descriptor. It never carries the
// mnemonic, the API key or the provider URL.
type NetworkView struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	NetworkID string `json:"network_id"`
	Host      string `json:"host,omitempty"`
	Port      int    `json:"port,omitempty"`
	Gas       uint64 `json:"gas,omitempty"`
	GasPrice  string `json:"gas_price,omitempty"`
}

func newNetworkView(d networks.Descriptor) NetworkView {
	view := NetworkView{
		Name:      d.Name,
		Kind:      string(d.Kind),
		NetworkID: d.NetworkID,
		Gas:       d.Gas,
	}
	if d.IsLocal() {
		view.Host = d.Host
		view.Port = d.Port
	}
	if d.GasPrice != nil {
		view.GasPrice = d.GasPrice.String()
	}
	return view
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"networks": len(s.networks.Networks),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.networks)
}

func (s *Server) handleSolc(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.networks.Solc)
}

func (s *Server) handleListNetworks(w http.ResponseWriter, _ *http.Request) {
	names := s.networks.Names()
	views := make([]NetworkView, 0, len(names))
	for _, name := range names {
		views = append(views, newNetworkView(s.networks.Networks[name]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetNetwork(w http.ResponseWriter, r *http.Request) {
	descriptor, err := s.networks.Lookup(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, newNetworkView(descriptor))
}

func (s *Server) handleSubmitDeployment(w http.ResponseWriter, r *http.Request) {
	var req deploy.Request
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "request body is not a valid deployment request")
		return
	}

	job, err := s.service.Submit(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	submitter := "anonymous"
	if subject := auth.SubjectFromContext(r.Context()); subject != nil {
		submitter = subject.Name
	}
	s.logger.Info("deployment submitted",
		slog.String("job_id", job.ID),
		slog.String("network", job.Network),
		slog.String("submitter", submitter),
	)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	jobs, err := s.service.List(r.Context(), opts...)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleDeploymentStats(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stats, err := s.service.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func listOptionsFromQuery(r *http.Request) ([]deploy.ListOption, error) {
	query := r.URL.Query()
	var opts []deploy.ListOption

	for _, key := range []string{"limit", "offset"} {
		raw := query.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, key+" must be a non-negative integer")
		}
		if key == "limit" {
			opts = append(opts, deploy.WithLimit(n))
		} else {
			opts = append(opts, deploy.WithOffset(n))
		}
	}

	if raw := query.Get("status"); raw != "" {
		var statuses []deploy.Status
		for _, part := range strings.Split(raw, ",") {
			status := deploy.Status(strings.TrimSpace(part))
			if !deploy.IsValidStatus(status) {
				return nil, xerrors.New(xerrors.CodeInvalidArgument, "unknown status "+string(status))
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, deploy.WithStatuses(statuses...))
	}
	if network := query.Get("network"); network != "" {
		opts = append(opts, deploy.WithNetwork(network))
	}
	switch query.Get("order") {
	case "", "desc":
	case "asc":
		opts = append(opts, deploy.WithSortOrder(deploy.SortByUpdatedAsc))
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "order must be asc or desc")
	}
	return opts, nil
}

// statusFor maps error codes onto HTTP statuses.
func statusFor(err error) int {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument, xerrors.CodeUnknownNetwork, deploy.CodeJobValidation:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, deploy.CodeJobNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, deploy.CodeJobConflict:
		return http.StatusConflict
	case xerrors.CodeInitializationFailure, xerrors.CodeQueueFailure, deploy.CodeJobPublish:
		return http.StatusServiceUnavailable
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	detail := ErrorDetail{Code: string(xerrors.CodeUnknown), Message: "internal error"}
	var coded *xerrors.Error
	if errors.As(err, &coded) {
		detail.Code = string(coded.Code())
		detail.Message = coded.Message()
		detail.Retryable = coded.Retryable()
		detail.Metadata = coded.Metadata()
	}
	writeJSON(w, status, ErrorBody{Error: detail})
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}
