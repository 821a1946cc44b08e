package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"glbd/internal/codec"
	"glbd/internal/manager"
)

// upload is a request payload plus its parameters. Parameters come from the
// query string and, for multipart requests, from the form fields.
type upload struct {
	data     []byte
	filename string
	params   url.Values
}

// readUpload accepts either a raw body or a multipart form with a "file" part.
func readUpload(w http.ResponseWriter, r *http.Request) (upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "multipart/form-data" {
		return readMultipart(r)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return upload{}, bodyError(err)
	}
	up := upload{data: data, filename: r.URL.Query().Get("filename"), params: r.URL.Query()}
	if len(up.data) == 0 {
		return upload{}, invalidRequest("empty request body")
	}
	return up, nil
}

func readMultipart(r *http.Request) (upload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return upload{}, bodyError(err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return upload{}, invalidRequest(`multipart request must carry a "file" part`)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return upload{}, bodyError(err)
	}
	if len(data) == 0 {
		return upload{}, invalidRequest("uploaded file is empty")
	}
	return upload{data: data, filename: hdr.Filename, params: r.Form}, nil
}

func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return requestError{
			class: errClassPayloadTooLarge,
			msg:   fmt.Sprintf("request body exceeds %d bytes", mbe.Limit),
			code:  http.StatusRequestEntityTooLarge,
		}
	}
	return invalidRequest("reading request body: " + err.Error())
}

func boolParam(v url.Values, name string) (bool, error) {
	s := strings.TrimSpace(v.Get(name))
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, invalidRequest(fmt.Sprintf("%s: expected a boolean, got %q", name, s))
	}
	return b, nil
}

func intParam(v url.Values, name string) (int, error) {
	s := strings.TrimSpace(v.Get(name))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, invalidRequest(fmt.Sprintf("%s: expected an integer, got %q", name, s))
	}
	return n, nil
}

// textureParams reads texture settings. Unset fields stay zero and are filled
// from the service defaults.
func textureParams(v url.Values) (codec.TextureSettings, error) {
	var s codec.TextureSettings
	var err error
	switch f := strings.ToLower(strings.TrimSpace(v.Get("format"))); f {
	case "":
	case string(codec.FormatETC1S), string(codec.FormatUASTC):
		s.Format = codec.Format(f)
	default:
		return s, invalidRequest(fmt.Sprintf("format: unknown texture format %q", f))
	}
	if s.Quality, err = intParam(v, "quality"); err != nil {
		return s, err
	}
	if s.CompressionLevel, err = intParam(v, "compression_level"); err != nil {
		return s, err
	}
	if s.FlipY, err = boolParam(v, "flip_y"); err != nil {
		return s, err
	}
	if s.ForceFormat, err = boolParam(v, "force_format"); err != nil {
		return s, err
	}
	return s, nil
}

func optimizeParams(v url.Values) (manager.OptimizeOptions, error) {
	var o manager.OptimizeOptions
	var err error
	if o.IgnoreDraco, err = boolParam(v, "ignore_draco"); err != nil {
		return o, err
	}
	if o.SkipMesh, err = boolParam(v, "skip_mesh"); err != nil {
		return o, err
	}
	if o.SkipTextures, err = boolParam(v, "skip_textures"); err != nil {
		return o, err
	}
	o.Texture, err = textureParams(v)
	return o, err
}

// outputName derives the download name from the uploaded file name.
func outputName(in, suffix, ext string) string {
	base := path.Base(strings.ReplaceAll(in, `\`, "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "model"
	}
	return base + suffix + ext
}
