package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/utafrali/VideoTube/pkg/validator"
)

const (
	maxBodyBytes = 1 << 20
	maxMemory    = 8 << 20
)

// bind decodes a JSON, urlencoded or multipart body into dst and validates
// it. Form values are matched to string fields by their form tag. Fields
// whose form tag carries the trim option lose surrounding whitespace before
// validation. An empty body leaves dst untouched.
func bind(w http.ResponseWriter, r *http.Request, dst any) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch ct {
	case "multipart/form-data":
		if r.MultipartForm == nil {
			return errors.New("multipart form not parsed")
		}
		bindForm(r.MultipartForm.Value, dst)
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("parse form: %w", err)
		}
		bindForm(r.PostForm, dst)
	default:
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode request body: %w", err)
		}
	}

	trimFields(dst)
	return validator.Validate(dst)
}

// formTag splits a form tag into its name and whether it asks for trimming.
func formTag(f reflect.StructField) (name string, trim bool) {
	name, opts, _ := strings.Cut(f.Tag.Get("form"), ",")
	for _, opt := range strings.Split(opts, ",") {
		if opt == "trim" {
			trim = true
		}
	}
	return name, trim
}

func trimFields(dst any) {
	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if _, trim := formTag(t.Field(i)); !trim {
			continue
		}
		if f := v.Field(i); f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
}

func bindForm(values map[string][]string, dst any) {
	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name, _ := formTag(t.Field(i))
		if name == "" || name == "-" {
			continue
		}
		f := v.Field(i)
		if f.Kind() != reflect.String || !f.CanSet() {
			continue
		}
		if vals := values[name]; len(vals) > 0 {
			f.SetString(vals[0])
		}
	}
}
