package settings

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/go-viper/mapstructure/v2"

	"github.com/adamwoolhether/asynclient/client/wire"
)

// Config is a resolved and validated settings Layer.
type Config struct {
	Method          string        `mapstructure:"method" validate:"required"`
	Headers         wire.Header   `mapstructure:"headers"`
	Body            []byte        `mapstructure:"body"`
	UserAgent       string        `mapstructure:"user_agent"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" validate:"gte=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
	FollowRedirects bool          `mapstructure:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects" validate:"gte=0"`
}

// Defaults returns the Layer Resolve places under every other.
func Defaults() Layer {
	return New(
		Method(DefaultMethod),
		FollowRedirects(true),
		MaxRedirects(DefaultMaxRedirects),
	)
}

// Resolve decodes l over Defaults into a Config and validates it.
// Durations may be given as time.Duration, as a duration string such
// as "1.5s", or as a number of seconds. Failures are KindInvalidConfig.
func (l Layer) Resolve() (Config, error) {
	merged := Defaults().Merge(l)

	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			durationHook,
			bytesHook,
			headerHook,
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, &wire.Error{Kind: wire.KindInvalidConfig, Op: "settings", Err: err}
	}

	if err := dec.Decode(merged.values); err != nil {
		return Config{}, &wire.Error{Kind: wire.KindInvalidConfig, Op: "settings", Err: err}
	}

	if err := Validate(cfg); err != nil {
		return Config{}, &wire.Error{Kind: wire.KindInvalidConfig, Op: "settings", Err: err}
	}

	return cfg, nil
}

var (
	durationType = reflect.TypeFor[time.Duration]()
	bytesType    = reflect.TypeFor[[]byte]()
	headerType   = reflect.TypeFor[wire.Header]()
)

func durationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}

	switch v := data.(type) {
	case time.Duration:
		return v, nil
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d, nil
		}
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q", v)
		}
		return seconds(secs), nil
	case nil:
		return time.Duration(0), nil
	}

	rv := reflect.ValueOf(data)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(rv.Int()) * time.Second, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(rv.Uint()) * time.Second, nil
	case reflect.Float32, reflect.Float64:
		return seconds(rv.Float()), nil
	}

	return data, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func bytesHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != bytesType {
		return data, nil
	}
	if s, ok := data.(string); ok {
		return []byte(s), nil
	}

	return data, nil
}

func headerHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != headerType {
		return data, nil
	}
	if data == nil {
		return wire.Header{}, nil
	}
	if h, ok := toHeader(data); ok {
		return h, nil
	}

	return nil, fmt.Errorf("headers must be a mapping, got %T", data)
}

// =============================================================================

var validate *validator.Validate
var translator ut.Translator

func init() {
	validate = validator.New()
	var ok bool
	translator, ok = ut.New(en.New(), en.New()).GetTranslator("en")
	if !ok {
		panic("settings: failed to get 'en' translator")
	}

	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})
}

// Validate checks cfg against its declared tags.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		verrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}

		var fields FieldErrors
		for _, verror := range verrors {
			field := FieldError{
				Field: verror.Field(),
				Err:   customErrForTag(verror.Tag(), verror),
			}
			fields = append(fields, field)
		}
		return fields
	}

	return nil
}

// FieldError represents a single validation error for a specific key.
type FieldError struct {
	Field string `json:"field"`
	Err   string `json:"error"`
}

// FieldErrors represents a collection of field errors.
type FieldErrors []FieldError

// Error implements the error interface, returning a human-readable
// summary of all field errors.
func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, f := range fe {
		parts[i] = f.Field + ": " + f.Err
	}
	return strings.Join(parts, "; ")
}

func customErrForTag(tag string, verror validator.FieldError) string {
	switch tag {
	case "required":
		return "This setting is required"
	default:
		return verror.Translate(translator)
	}
}
