package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urbanatlas/spatial-cli/internal/catalog"
	"github.com/urbanatlas/spatial-cli/internal/datasource"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catalog HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initCatalog(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mux := newServeMux(st, int64(cfg.Server.UploadMaxMB)<<20)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newServeMux builds the catalog API routes on top of st. Uploads larger
// than uploadMaxBytes are rejected.
func newServeMux(st catalog.Store, uploadMaxBytes int64) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /datasources", func(w http.ResponseWriter, r *http.Request) {
		handleUpload(w, r, st, uploadMaxBytes)
	})

	mux.HandleFunc("GET /datasources", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := catalog.Filter{RegionID: q.Get("region")}
		if v := q.Get("format"); v != "" {
			f, err := datasource.ParseFormat(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			filter.Format = f
		}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, eris.Errorf("invalid limit %q", v))
				return
			}
			filter.Limit = n
		}
		if v := q.Get("offset"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, eris.Errorf("invalid offset %q", v))
				return
			}
			filter.Offset = n
		}

		sources, err := st.List(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, sources)
	})

	mux.HandleFunc("GET /datasources/{id}", func(w http.ResponseWriter, r *http.Request) {
		src, err := st.Get(r.Context(), r.PathValue("id"))
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, src)
	})

	mux.HandleFunc("DELETE /datasources/{id}", func(w http.ResponseWriter, r *http.Request) {
		err := st.Delete(r.Context(), r.PathValue("id"))
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

// handleUpload ingests a multipart upload. Shapefile sidecars (.dbf,
// .shx, .prj) ride along as extra "file" parts next to the primary file.
func handleUpload(w http.ResponseWriter, r *http.Request, st catalog.Store, uploadMaxBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, uploadMaxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "parse multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, eris.New(`at least one "file" part is required`))
		return
	}

	dir, err := os.MkdirTemp("", "spatial-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, eris.Wrap(err, "create upload dir"))
		return
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	for _, fh := range files {
		if err := saveUploadPart(dir, fh); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	entry := manifestEntry{
		Format:      r.FormValue("format"),
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		RegionID:    r.FormValue("region_id"),
		OwnerEmail:  r.FormValue("owner_email"),
		AccessGroup: r.FormValue("access_group"),
	}

	entry.File, err = primaryUploadFile(dir, files, entry.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := entry.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	src, err := ingestOne(r.Context(), st, entry, datasource.NoopProgressListener{})
	if err != nil {
		if datasource.IsFormatError(err) || datasource.IsGeometryError(err) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, src)
}

// saveUploadPart writes one multipart file part into dir under its
// base name.
func saveUploadPart(dir string, fh *multipart.FileHeader) error {
	name := filepath.Base(fh.Filename)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return eris.Errorf("invalid file name %q", fh.Filename)
	}

	part, err := fh.Open()
	if err != nil {
		return eris.Wrapf(err, "open upload part %s", name)
	}
	defer part.Close() //nolint:errcheck

	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return eris.Wrapf(err, "save upload part %s", name)
	}
	defer dst.Close() //nolint:errcheck

	if _, err := io.Copy(dst, part); err != nil {
		return eris.Wrapf(err, "save upload part %s", name)
	}
	return nil
}

// primaryUploadFile picks the part to hand to the ingester: the one
// matching the explicit format when given, otherwise the first part whose
// extension maps to a supported format.
func primaryUploadFile(dir string, files []*multipart.FileHeader, explicit string) (string, error) {
	if explicit != "" {
		want, err := datasource.ParseFormat(explicit)
		if err != nil {
			return "", err
		}
		for _, fh := range files {
			path := filepath.Join(dir, filepath.Base(fh.Filename))
			if f, err := datasource.FormatForPath(path); err == nil && f == want {
				return path, nil
			}
		}
		return "", eris.Errorf("no uploaded file matches format %q", explicit)
	}

	for _, fh := range files {
		path := filepath.Join(dir, filepath.Base(fh.Filename))
		if _, err := datasource.FormatForPath(path); err == nil {
			return path, nil
		}
	}
	return "", eris.New("no uploaded file has a recognized extension")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
