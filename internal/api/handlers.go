package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/local/pdfdesk/internal/apperr"
	"github.com/local/pdfdesk/internal/service"
)

const sessionHeader = "X-Session-ID"

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.deps.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.InvalidInput, err, "Expected a multipart upload."))
		return
	}
	next := func() (service.Incoming, error) {
		for {
			part, err := mr.NextPart()
			if err != nil {
				var tooBig *http.MaxBytesError
				if errors.As(err, &tooBig) {
					return service.Incoming{}, apperr.Wrap(apperr.TooLarge, err, "Upload too large.")
				}
				if errors.Is(err, io.EOF) {
					return service.Incoming{}, io.EOF
				}
				return service.Incoming{}, apperr.Wrap(apperr.InvalidInput, err, "Malformed multipart upload.")
			}
			if part.FormName() != "files" || part.FileName() == "" {
				_ = part.Close()
				continue
			}
			return service.Incoming{Name: part.FileName(), Body: part}, nil
		}
	}
	res, err := s.svc.Upload(r.Context(), r.Header.Get(sessionHeader), next)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		service.UploadResult
	}{true, res})
}

type importRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	info, err := s.svc.Import(r.Context(), r.Header.Get(sessionHeader), req.URL, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool             `json:"success"`
		File    service.FileInfo `json:"file"`
	}{true, info})
}

func (s *Server) writeOutput(w http.ResponseWriter, r *http.Request, out service.Output, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		service.Output
	}{true, out})
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req service.MergeRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.svc.Merge(r.Context(), req)
	s.writeOutput(w, r, out, err)
}

func (s *Server) handleOrganize(w http.ResponseWriter, r *http.Request) {
	var req service.OrganizeRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.svc.Organize(r.Context(), req)
	s.writeOutput(w, r, out, err)
}

func (s *Server) handleImagesToPDF(w http.ResponseWriter, r *http.Request) {
	var req service.ImagesRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.svc.ImagesToPDF(r.Context(), req)
	s.writeOutput(w, r, out, err)
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	var req service.SplitRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Split(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		service.SplitResult
	}{true, res})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req service.CompressRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	plan, err := s.svc.Compress(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		service.CompressPlan
	}{true, plan})
}

func (s *Server) writeCompressed(w http.ResponseWriter, r *http.Request, res service.CompressResult, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		service.CompressResult
	}{true, res})
}

func (s *Server) handleCompressSave(w http.ResponseWriter, r *http.Request) {
	var req service.CompressSaveRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.CompressSave(r.Context(), req)
	s.writeCompressed(w, r, res, err)
}

func (s *Server) handleCompressRun(w http.ResponseWriter, r *http.Request) {
	var req service.CompressRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.CompressRun(r.Context(), req)
	s.writeCompressed(w, r, res, err)
}

type pdfToJPGRequest struct {
	FileID  string `json:"fileId"`
	Quality string `json:"quality"`
}

func (s *Server) handlePDFToImages(w http.ResponseWriter, r *http.Request) {
	var req pdfToJPGRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	info, err := s.svc.PDFToImages(r.Context(), req.FileID, req.Quality)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		service.RenderInfo
	}{true, info})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.InvalidPageIndex, "Invalid page number."))
		return
	}
	q := r.URL.Query()
	dpi, _ := strconv.Atoi(q.Get("dpi"))
	img, err := s.svc.RenderPage(r.Context(), r.PathValue("fileId"), page, q.Get("quality"), dpi)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(img.JPEG)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img.JPEG)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Info(r.Context(), r.PathValue("fileId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		service.DocInfo
	}{true, info})
}

// handlePDFFile streams a tracked PDF inline, for in-browser previews.
func (s *Server) handlePDFFile(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, "inline", "")
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, "attachment", r.URL.Query().Get("filename"))
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, disposition, name string) {
	rec, f, err := s.svc.Open(r.PathValue("fileId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer f.Close()
	if name == "" {
		name = rec.OriginalName
	}
	if name == "" {
		name = rec.ID + rec.Kind.Extension()
	}
	w.Header().Set("Content-Type", rec.Kind.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": name}))
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, "", rec.CreatedAt, f)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.PathValue("fileId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "File deleted."})
}

func (s *Server) writeExpiry(w http.ResponseWriter, r *http.Request, info service.ExpiryInfo, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		service.ExpiryInfo
	}{true, info})
}

func (s *Server) handleExpiry(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Expiry(r.PathValue("fileId"))
	s.writeExpiry(w, r, info, err)
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Extend(r.PathValue("fileId"))
	s.writeExpiry(w, r, info, err)
}
