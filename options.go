package tinify

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ResizeMethod selects how the service fits the image into the requested box.
type ResizeMethod string

const (
	ResizeScale ResizeMethod = "scale"
	ResizeFit   ResizeMethod = "fit"
	ResizeCover ResizeMethod = "cover"
	ResizeThumb ResizeMethod = "thumb"
)

// Format identifies an image media type the service can convert to.
type Format string

const (
	FormatAVIF Format = "image/avif"
	FormatWebP Format = "image/webp"
	FormatJPEG Format = "image/jpeg"
	FormatPNG  Format = "image/png"
)

// Metadata names an image metadata group that survives compression when
// explicitly preserved.
type Metadata string

const (
	MetadataCopyright Metadata = "copyright"
	MetadataCreation  Metadata = "creation"
	MetadataLocation  Metadata = "location"
)

// ResizeOptions describes a resize operation. At least one dimension is
// required; a zero dimension means unset. Both dimensions, when given, must
// fall in [1, 10000].
type ResizeOptions struct {
	Method ResizeMethod `json:"method" validate:"required,oneof=scale fit cover thumb"`
	Width  int          `json:"width,omitempty" validate:"required_without=Height,omitempty,min=1,max=10000"`
	Height int          `json:"height,omitempty" validate:"required_without=Width,omitempty,min=1,max=10000"`
}

// Validate checks the options locally so a bad request never spends a
// rate-limit token.
func (o ResizeOptions) Validate() error {
	return validateOptions(o)
}

// ConvertOptions describes a format conversion. Background is consulted by
// the service when converting images with transparency to an opaque format;
// it accepts a hex color or the keywords white and black.
type ConvertOptions struct {
	Type       Format `json:"type" validate:"required,oneof=image/avif image/webp image/jpeg image/png"`
	Background string `json:"background,omitempty" validate:"omitempty,hexcolor|oneof=white black"`
}

// Validate checks the options locally.
func (o ConvertOptions) Validate() error {
	return validateOptions(o)
}

// StoreOptions identifies a cloud storage target for a store operation.
// Implementations are the provider-specific option structs in this package;
// the interface is sealed by the unexported method.
type StoreOptions interface {
	// Validate checks the options locally.
	Validate() error
	storeService() string
}

// S3Options stores the image to Amazon S3 or an S3-compatible service.
// Path has the form "bucket/key". Headers are passed through to the stored
// object; ACL is optional.
type S3Options struct {
	AccessKeyID     string            `json:"aws_access_key_id" validate:"required"`
	SecretAccessKey string            `json:"aws_secret_access_key" validate:"required"`
	Region          string            `json:"region" validate:"required"`
	Path            string            `json:"path" validate:"required,contains=/"`
	Headers         map[string]string `json:"headers,omitempty"`
	ACL             string            `json:"acl,omitempty"`
}

// Validate checks the options locally.
func (o S3Options) Validate() error {
	return validateOptions(o)
}

func (S3Options) storeService() string { return "s3" }

// GCSOptions stores the image to Google Cloud Storage. The access token is
// a short-lived OAuth2 token with write access to the bucket.
type GCSOptions struct {
	AccessToken string            `json:"gcp_access_token" validate:"required"`
	Path        string            `json:"path" validate:"required,contains=/"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Validate checks the options locally.
func (o GCSOptions) Validate() error {
	return validateOptions(o)
}

func (GCSOptions) storeService() string { return "gcs" }

// marshalStore renders the store directive body: the provider options with
// the "service" discriminator injected, wrapped under "store".
func marshalStore(opts StoreOptions) ([]byte, error) {
	raw, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["service"] = opts.storeService()
	return json.Marshal(map[string]any{"store": fields})
}

// validMetadata reports whether every requested metadata group is known.
func validMetadata(groups []Metadata) error {
	if len(groups) == 0 {
		return NewValidationError("at least one metadata group is required", "preserve")
	}
	for _, g := range groups {
		switch g {
		case MetadataCopyright, MetadataCreation, MetadataLocation:
		default:
			return NewValidationError(fmt.Sprintf("unknown metadata group %q", g), "preserve")
		}
	}
	return nil
}

// optionsValidator is created once and reused; the instance caches struct
// metadata and is safe for concurrent use.
var optionsValidator = newOptionsValidator()

func newOptionsValidator() *validator.Validate {
	v := validator.New()
	// Report wire field names (json tags) instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateOptions runs struct validation and flattens the first failure
// into a validation error naming the offending wire field.
func validateOptions(i any) error {
	err := optionsValidator.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return NewValidationError(fieldErrorMessage(fe), fe.Field())
	}
	return NewValidationError(err.Error(), "")
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "required_without":
		return fmt.Sprintf("%s is required when %s is not set", fe.Field(), strings.ToLower(fe.Param()))
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "contains":
		return fmt.Sprintf("%s must contain %q", fe.Field(), fe.Param())
	default:
		// OR-combined tags surface as the whole chain, e.g. "hexcolor|oneof=..."
		if strings.Contains(fe.Tag(), "hexcolor") {
			return fmt.Sprintf("%s must be a hex color, white, or black", fe.Field())
		}
		return fmt.Sprintf("%s failed validation", fe.Field())
	}
}
