package httpapi

import (
	"encoding/xml"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/objectstore"
)

// s3API serves the object control plane.
type s3API struct {
	store *objectstore.Store
	log   *zap.Logger
}

// NewS3Handler builds the object service's router. The stats route is
// registered ahead of the bucket wildcards so it wins the match.
func NewS3Handler(store *objectstore.Store, logger *zap.Logger, collector statsSource) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &s3API{store: store, log: logger}

	r := mux.NewRouter()
	r.HandleFunc("/_woofstack/stats", statsHandler(collector)).Methods(http.MethodGet)
	r.HandleFunc("/{bucket}", api.putBucket).Methods(http.MethodPut)
	r.HandleFunc("/{bucket}", api.listBucket).Methods(http.MethodGet)
	r.HandleFunc("/{bucket}/{key:.+}", api.putObject).Methods(http.MethodPut)
	r.HandleFunc("/{bucket}/{key:.+}", api.getObject).Methods(http.MethodGet)
	r.HandleFunc("/{bucket}/{key:.+}", api.deleteObject).Methods(http.MethodDelete)
	return r
}

// putBucket handles both the bucket-creation no-op (buckets auto-exist)
// and, with the ?notification query, installing the bucket's
// notification configuration from the XML body.
func (api *s3API) putBucket(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]

	if _, ok := r.URL.Query()["notification"]; ok {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeS3Error(w, api.log, errs.Service("httpapi.putBucket", err))
			return
		}
		if err := api.store.SetNotification(bucket, body); err != nil {
			writeS3Error(w, api.log, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := api.store.EnsureBucket(bucket); err != nil {
		writeS3Error(w, api.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// listBucketResult is the ListBucketResult subset the object service
// renders for bucket listings.
type listBucketResult struct {
	XMLName  xml.Name            `xml:"ListBucketResult"`
	Name     string              `xml:"Name"`
	Prefix   string              `xml:"Prefix,omitempty"`
	Contents []listBucketContent `xml:"Contents"`
}

type listBucketContent struct {
	Key          string    `xml:"Key"`
	Size         uint64    `xml:"Size"`
	LastModified time.Time `xml:"LastModified"`
}

func (api *s3API) listBucket(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]

	if _, ok := r.URL.Query()["notification"]; ok {
		api.getNotification(w, bucket)
		return
	}

	prefix := r.URL.Query().Get("prefix")
	entries, err := api.store.ListObjects(bucket, prefix)
	if err != nil {
		writeS3Error(w, api.log, err)
		return
	}

	result := listBucketResult{Name: bucket, Prefix: prefix}
	for _, entry := range entries {
		result.Contents = append(result.Contents, listBucketContent{
			Key:          entry.Key,
			Size:         entry.Size,
			LastModified: entry.ModifiedAt,
		})
	}
	writeXML(w, api.log, result)
}

func (api *s3API) getNotification(w http.ResponseWriter, bucket string) {
	cfg, err := api.store.Notification(bucket)
	if err != nil {
		writeS3Error(w, api.log, err)
		return
	}
	if cfg == nil {
		writeXML(w, api.log, struct {
			XMLName xml.Name `xml:"NotificationConfiguration"`
		}{})
		return
	}
	writeXML(w, api.log, cfg)
}

func writeXML(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode XML response", zap.Error(err))
	}
}

func (api *s3API) putObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeS3Error(w, api.log, errs.Service("httpapi.putObject", err))
		return
	}

	if err := api.store.PutObject(vars["bucket"], vars["key"], body, r.Header.Get("Content-Type")); err != nil {
		writeS3Error(w, api.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (api *s3API) getObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	data, info, err := api.store.GetObject(vars["bucket"], vars["key"])
	if err != nil {
		writeS3Error(w, api.log, err)
		return
	}

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Last-Modified", info.ModifiedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (api *s3API) deleteObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := api.store.DeleteObject(vars["bucket"], vars["key"]); err != nil {
		writeS3Error(w, api.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
