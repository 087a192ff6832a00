package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/functions"
	"github.com/woofstack/platform/types"
)

// lambdaAPI serves the function control plane.
type lambdaAPI struct {
	manager *functions.Manager
	log     *zap.Logger
}

// NewLambdaHandler builds the function service's router.
func NewLambdaHandler(manager *functions.Manager, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &lambdaAPI{manager: manager, log: logger}

	r := mux.NewRouter()
	r.HandleFunc("/2015-03-31/functions", api.create).Methods(http.MethodPost)
	r.HandleFunc("/2015-03-31/functions", api.list).Methods(http.MethodGet)
	r.HandleFunc("/2015-03-31/functions/{name}", api.get).Methods(http.MethodGet)
	r.HandleFunc("/2015-03-31/functions/{name}", api.delete).Methods(http.MethodDelete)
	r.HandleFunc("/2015-03-31/functions/{name}/code", api.updateCode).Methods(http.MethodPut)
	r.HandleFunc("/2015-03-31/functions/{name}/invocations", api.invoke).Methods(http.MethodPost)
	r.HandleFunc("/_woofstack/stats", statsHandler(manager.Metrics())).Methods(http.MethodGet)
	return r
}

// createFunctionRequest is the POST /2015-03-31/functions body.
type createFunctionRequest struct {
	FunctionName string `json:"FunctionName"`
	Handler      string `json:"Handler"`
	Description  string `json:"Description"`
	Timeout      int    `json:"Timeout"`
	Code         struct {
		ZipFile string `json:"ZipFile"`
	} `json:"Code"`
}

// updateCodeRequest is the PUT /2015-03-31/functions/:name/code body.
type updateCodeRequest struct {
	ZipFile string `json:"ZipFile"`
}

func (api *lambdaAPI) create(w http.ResponseWriter, r *http.Request) {
	var req createFunctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLambdaError(w, api.log, errs.Invalid("httpapi.create", "malformed request body"))
		return
	}
	if req.Code.ZipFile == "" {
		writeLambdaError(w, api.log, errs.Invalid("httpapi.create", "Code.ZipFile is required"))
		return
	}

	zipData, err := base64.StdEncoding.DecodeString(req.Code.ZipFile)
	if err != nil {
		writeLambdaError(w, api.log, errs.Invalid("httpapi.create", "Code.ZipFile is not valid base64"))
		return
	}

	props, err := api.manager.Create(r.Context(), functions.CreateRequest{
		Name:        req.FunctionName,
		Handler:     req.Handler,
		Description: req.Description,
		Timeout:     req.Timeout,
		ZipData:     zipData,
	})
	if err != nil {
		writeLambdaError(w, api.log, err)
		return
	}
	writeJSON(w, http.StatusOK, props)
}

func (api *lambdaAPI) list(w http.ResponseWriter, _ *http.Request) {
	list, err := api.manager.List()
	if err != nil {
		writeLambdaError(w, api.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"Functions": list})
}

func (api *lambdaAPI) get(w http.ResponseWriter, r *http.Request) {
	props, err := api.manager.Get(mux.Vars(r)["name"])
	if err != nil {
		writeLambdaError(w, api.log, err)
		return
	}
	writeJSON(w, http.StatusOK, props)
}

func (api *lambdaAPI) delete(w http.ResponseWriter, r *http.Request) {
	if err := api.manager.Delete(mux.Vars(r)["name"]); err != nil {
		writeLambdaError(w, api.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *lambdaAPI) updateCode(w http.ResponseWriter, r *http.Request) {
	var req updateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLambdaError(w, api.log, errs.Invalid("httpapi.updateCode", "malformed request body"))
		return
	}
	zipData, err := base64.StdEncoding.DecodeString(req.ZipFile)
	if err != nil {
		writeLambdaError(w, api.log, errs.Invalid("httpapi.updateCode", "ZipFile is not valid base64"))
		return
	}

	props, err := api.manager.UpdateCode(r.Context(), mux.Vars(r)["name"], zipData)
	if err != nil {
		writeLambdaError(w, api.log, err)
		return
	}
	writeJSON(w, http.StatusOK, props)
}

func (api *lambdaAPI) invoke(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeLambdaError(w, api.log, errs.Service("httpapi.invoke", err))
		return
	}
	mode := types.ParseInvocationMode(r.Header.Get("X-Amz-Invocation-Type"))

	body, err := api.manager.Invoke(r.Context(), mux.Vars(r)["name"], payload, mode)
	if err != nil {
		writeLambdaError(w, api.log, err)
		return
	}

	if mode == types.InvocationEvent {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
