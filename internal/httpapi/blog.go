package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mopstar/mopstar-api/internal/blog"
	"github.com/mopstar/mopstar-api/internal/logging"
	"github.com/mopstar/mopstar-api/internal/media"
)

type postsResponse struct {
	Success bool        `json:"success"`
	Blogs   []blog.Post `json:"blogs"`
}

type postResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Blog    *blog.Post `json:"blog"`
}

type commentsResponse struct {
	Success  bool           `json:"success"`
	Comments []blog.Comment `json:"comments"`
}

type commentResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Comment *blog.Comment `json:"comment"`
}

// errUploadsDisabled means no image store is configured.
var errUploadsDisabled = errors.New("image uploads are not configured")

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.deps.Blog.List(r.Context())
	if err != nil {
		s.writeBlogError(w, r, err)
		return
	}
	if posts == nil {
		posts = []blog.Post{}
	}
	writeJSON(w, http.StatusOK, postsResponse{Success: true, Blogs: posts})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Blog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeBlogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, postResponse{Success: true, Blog: p})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	in, err := s.readPostForm(w, r)
	if err != nil {
		s.writeBlogError(w, r, err)
		return
	}
	p, err := s.deps.Blog.Create(r.Context(), in)
	if err != nil {
		s.writeBlogError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("blog post created", "post_id", p.ID)
	writeJSON(w, http.StatusCreated, postResponse{Success: true, Message: "Blog created successfully", Blog: p})
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	in, err := s.readPostForm(w, r)
	if err != nil {
		s.writeBlogError(w, r, err)
		return
	}
	p, err := s.deps.Blog.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeBlogError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("blog post updated", "post_id", p.ID)
	writeJSON(w, http.StatusOK, postResponse{Success: true, Message: "Blog updated successfully", Blog: p})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Blog.Delete(r.Context(), id); err != nil {
		s.writeBlogError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("blog post deleted", "post_id", id)
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Blog deleted successfully"})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var in blog.CommentInput
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	c, err := s.deps.Blog.AddComment(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeBlogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, commentResponse{Success: true, Message: "Comment added successfully", Comment: c})
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.deps.Blog.Comments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeBlogError(w, r, err)
		return
	}
	if comments == nil {
		comments = []blog.Comment{}
	}
	writeJSON(w, http.StatusOK, commentsResponse{Success: true, Comments: comments})
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	err := s.deps.Blog.DeleteComment(r.Context(),
		chi.URLParam(r, "blogID"), chi.URLParam(r, "commentID"), body.Email)
	if err != nil {
		s.writeBlogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Comment deleted successfully"})
}

// readPostForm parses a multipart post form and uploads its images.
// Text fields: title, content, category, tags (JSON array, repeated or comma separated).
// Files: mainImage, galleryImages (up to blog.MaxGalleryImages).
func (s *Server) readPostForm(w http.ResponseWriter, r *http.Request) (blog.PostInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		return blog.PostInput{}, &blog.ValidationError{Message: "Invalid form data"}
	}
	defer r.MultipartForm.RemoveAll()

	in := blog.PostInput{
		Title:    r.FormValue("title"),
		Content:  r.FormValue("content"),
		Category: r.FormValue("category"),
	}
	for _, v := range r.MultipartForm.Value["tags"] {
		in.Tags = append(in.Tags, parseTags(v)...)
	}

	files := r.MultipartForm.File
	if len(files["galleryImages"]) > blog.MaxGalleryImages {
		return blog.PostInput{}, &blog.ValidationError{
			Message: fmt.Sprintf("At most %d gallery images are allowed", blog.MaxGalleryImages),
		}
	}

	if main := files["mainImage"]; len(main) > 0 {
		url, err := s.upload(r, main[0])
		if err != nil {
			return blog.PostInput{}, err
		}
		in.MainImage = url
	}
	for _, fh := range files["galleryImages"] {
		url, err := s.upload(r, fh)
		if err != nil {
			return blog.PostInput{}, err
		}
		in.GalleryImages = append(in.GalleryImages, url)
	}
	return in, nil
}

// parseTags accepts a JSON array as sent by the admin panel, or a comma
// separated list.
func parseTags(v string) []string {
	if strings.HasPrefix(strings.TrimSpace(v), "[") {
		var tags []string
		if err := json.Unmarshal([]byte(v), &tags); err == nil {
			return tags
		}
	}
	return strings.Split(v, ",")
}

func (s *Server) upload(r *http.Request, fh *multipart.FileHeader) (string, error) {
	if s.deps.Uploader == nil {
		return "", errUploadsDisabled
	}
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload %q: %w", fh.Filename, err)
	}
	defer f.Close()

	url, err := s.deps.Uploader.Upload(r.Context(), f, fh.Size)
	if err != nil {
		return "", fmt.Errorf("failed to upload %q: %w", fh.Filename, err)
	}
	return url, nil
}

func (s *Server) writeBlogError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *blog.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, blog.ErrNotFound):
		writeError(w, http.StatusNotFound, "Blog not found")
	case errors.Is(err, blog.ErrCommentNotFound):
		writeError(w, http.StatusNotFound, "Comment not found")
	case errors.Is(err, blog.ErrNotOwner):
		writeError(w, http.StatusForbidden, "You can only delete your own comments")
	case errors.Is(err, media.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, "Only JPEG, PNG, GIF and WebP images are allowed")
	case errors.Is(err, errUploadsDisabled):
		writeError(w, http.StatusServiceUnavailable, "Image uploads are not available")
	default:
		logging.FromContext(r.Context()).Error("blog request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
