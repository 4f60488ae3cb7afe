package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/go-chi/chi/v5"

	"github.com/systmms/kvemu/pkg/keyvault"
)

// maxBodyBytes bounds request bodies. Key Vault caps secret values at 25k.
const maxBodyBytes = 64 << 10

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active, deleted := s.client.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"vaultUrl": s.client.VaultURL(),
		"active":   active,
		"deleted":  deleted,
	})
}

// handleSetSecret handles PUT /secrets/{name}
func (s *Server) handleSetSecret(w http.ResponseWriter, r *http.Request) {
	var params azsecrets.SetSecretParameters
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, http.StatusBadRequest, keyvault.CodeBadParameter, "The request body is not valid JSON.")
		return
	}
	if params.Value == nil {
		writeError(w, http.StatusBadRequest, keyvault.CodeBadParameter, "Secret value must be provided.")
		return
	}

	resp, err := s.client.SetSecret(r.Context(), chi.URLParam(r, "name"), params, nil)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Secret)
}

// handleGetSecret handles GET /secrets/{name} and GET /secrets/{name}/{version}
func (s *Server) handleGetSecret(w http.ResponseWriter, r *http.Request) {
	resp, err := s.client.GetSecret(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "version"), nil)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Secret)
}

// handleUpdateSecret handles PATCH /secrets/{name} and PATCH /secrets/{name}/{version}
func (s *Server) handleUpdateSecret(w http.ResponseWriter, r *http.Request) {
	var params azsecrets.UpdateSecretPropertiesParameters
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, http.StatusBadRequest, keyvault.CodeBadParameter, "The request body is not valid JSON.")
		return
	}

	resp, err := s.client.UpdateSecretProperties(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "version"), params, nil)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Secret)
}

// handleDeleteSecret handles DELETE /secrets/{name}
func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	resp, err := s.client.DeleteSecret(r.Context(), chi.URLParam(r, "name"), nil)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp.DeletedSecret)
}

// handleGetDeleted handles GET /deletedsecrets/{name}
func (s *Server) handleGetDeleted(w http.ResponseWriter, r *http.Request) {
	resp, err := s.client.GetDeletedSecret(r.Context(), chi.URLParam(r, "name"), nil)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp.DeletedSecret)
}

// handlePurge handles DELETE /deletedsecrets/{name}
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if _, err := s.client.PurgeDeletedSecret(r.Context(), chi.URLParam(r, "name"), nil); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRecover handles POST /deletedsecrets/{name}/recover
func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	resp, err := s.client.RecoverDeletedSecret(r.Context(), chi.URLParam(r, "name"), nil)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Secret)
}

// handleListSecrets handles GET /secrets
func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	var out azsecrets.SecretPropertiesListResult
	err := drain(r.Context(), s.client.NewListSecretPropertiesPager(nil), func(p azsecrets.ListSecretPropertiesResponse) {
		out.Value = append(out.Value, p.Value...)
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListVersions handles GET /secrets/{name}/versions
func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	var out azsecrets.SecretPropertiesListResult
	pager := s.client.NewListSecretPropertiesVersionsPager(chi.URLParam(r, "name"), nil)
	err := drain(r.Context(), pager, func(p azsecrets.ListSecretPropertiesVersionsResponse) {
		out.Value = append(out.Value, p.Value...)
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListDeleted handles GET /deletedsecrets
func (s *Server) handleListDeleted(w http.ResponseWriter, r *http.Request) {
	var out azsecrets.DeletedSecretPropertiesListResult
	err := drain(r.Context(), s.client.NewListDeletedSecretPropertiesPager(nil), func(p azsecrets.ListDeletedSecretPropertiesResponse) {
		out.Value = append(out.Value, p.Value...)
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// writeFailure maps a client error onto a status code and Key Vault error body.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var re *keyvault.ResponseError
	switch {
	case errors.As(err, &re):
		writeError(w, re.StatusCode, re.ErrorCode, re.Message)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "RequestCanceled", err.Error())
	default:
		s.logger.Error("Unexpected failure: %v", err)
		writeError(w, http.StatusInternalServerError, "InternalError", err.Error())
	}
}

func drain[P any](ctx context.Context, pager *runtime.Pager[P], each func(P)) error {
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		each(page)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, errorBody{Error: errorDetail{Code: errCode, Message: msg}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}
