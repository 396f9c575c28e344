package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	v "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Parameter names accepted on a capture request.
const (
	ParamURL             = "url"
	ParamWidth           = "width"
	ParamHeight          = "height"
	ParamFormat          = "format"
	ParamQuality         = "quality"
	ParamFullPage        = "fullPage"
	ParamDarkMode        = "darkMode"
	ParamTransparent     = "transparent"
	ParamBlockAds        = "blockAds"
	ParamPrintBackground = "printBackground"
	ParamMinLoadTime     = "minLoadTime"
	ParamMaxLoadTime     = "maxLoadTime"
	ParamCacheTime       = "cacheTime"
	ParamUserAgent       = "userAgent"
	ParamSelector        = "selector"
	ParamWaitForSelector = "waitForSelector"
	ParamWaitUntil       = "waitUntil"
	ParamHeaders         = "headers"
	ParamPDFFormat       = "pdfFormat"
	ParamMarginTop       = "marginTop"
	ParamMarginRight     = "marginRight"
	ParamMarginBottom    = "marginBottom"
	ParamMarginLeft      = "marginLeft"
	ParamAPIKey          = "apiKey"
	ParamAPIKeyAlt       = "api_key"
)

var knownParams = map[string]struct{}{
	ParamURL: {}, ParamWidth: {}, ParamHeight: {}, ParamFormat: {}, ParamQuality: {},
	ParamFullPage: {}, ParamDarkMode: {}, ParamTransparent: {}, ParamBlockAds: {},
	ParamPrintBackground: {}, ParamMinLoadTime: {}, ParamMaxLoadTime: {}, ParamCacheTime: {},
	ParamUserAgent: {}, ParamSelector: {}, ParamWaitForSelector: {}, ParamWaitUntil: {},
	ParamHeaders: {}, ParamPDFFormat: {}, ParamMarginTop: {}, ParamMarginRight: {},
	ParamMarginBottom: {}, ParamMarginLeft: {}, ParamAPIKey: {}, ParamAPIKeyAlt: {},
}

// Request is a validated capture request. Params keeps the raw mapping for cache-key derivation.
type Request struct {
	Params Params

	URL             string
	Width           int
	Height          int
	Kind            ContentKind
	Quality         int
	FullPage        bool
	DarkMode        bool
	Transparent     bool
	BlockAds        bool
	PrintBackground bool
	MinLoadTime     time.Duration
	MaxLoadTime     time.Duration
	// CacheTime is nil when the caller did not supply one; a zero duration disables caching.
	CacheTime       *time.Duration
	UserAgent       string
	Selector        string
	WaitForSelector string
	WaitUntil       WaitCondition
	Headers         map[string]string
	PDFFormat       string
	MarginTop       string
	MarginRight     string
	MarginBottom    string
	MarginLeft      string
	APIKey          string
}

// rawRequest holds parsed but not yet defaulted values; pointer fields distinguish absent from zero.
type rawRequest struct {
	URL             string `json:"url"`
	Width           *int   `json:"width"`
	Height          *int   `json:"height"`
	Format          string `json:"format"`
	Quality         *int   `json:"quality"`
	MinLoadTime     *int   `json:"minLoadTime"`
	MaxLoadTime     *int   `json:"maxLoadTime"`
	CacheTime       *int   `json:"cacheTime"`
	WaitUntil       string `json:"waitUntil"`
	PDFFormat       string `json:"pdfFormat"`
	Headers         string `json:"headers"`
	FullPage        *bool  `json:"fullPage"`
	DarkMode        *bool  `json:"darkMode"`
	Transparent     *bool  `json:"transparent"`
	BlockAds        *bool  `json:"blockAds"`
	PrintBackground *bool  `json:"printBackground"`
}

func (r *rawRequest) Validate() error {
	return v.ValidateStruct(r,
		v.Field(&r.URL, v.Required, is.URL, v.By(httpURL)),
		v.Field(&r.Width, v.By(intBetween(1, 5000))),
		v.Field(&r.Height, v.By(intBetween(1, 5000))),
		v.Field(&r.Format, v.In("png", "jpeg", "jpg", "pdf")),
		v.Field(&r.Quality, v.By(intBetween(1, 100))),
		v.Field(&r.MinLoadTime, v.By(intBetween(0, 30000))),
		v.Field(&r.MaxLoadTime, v.By(intBetween(1000, 60000))),
		v.Field(&r.CacheTime, v.By(intBetween(0, math.MaxInt32))),
		v.Field(&r.WaitUntil, v.In(string(WaitLoad), string(WaitDOMContentLoaded),
			string(WaitNetworkIdle0), string(WaitNetworkIdle2))),
		v.Field(&r.PDFFormat, v.In("Letter", "Legal", "Tabloid", "A0", "A1", "A2", "A3", "A4", "A5")),
		v.Field(&r.Headers, v.By(jsonObject)),
	)
}

// NewRequest parses and validates raw parameters. Every failure wraps ErrValidation.
func NewRequest(params Params) (Request, error) {
	var (
		raw  rawRequest
		errs = v.Errors{}
	)
	for name := range params {
		if _, ok := knownParams[name]; !ok {
			errs[name] = errors.New("unknown parameter")
		}
	}

	raw.URL = ParamString(params, ParamURL)
	raw.Format = strings.ToLower(ParamString(params, ParamFormat))
	raw.WaitUntil = ParamString(params, ParamWaitUntil)
	raw.PDFFormat = ParamString(params, ParamPDFFormat)
	raw.Headers = ParamString(params, ParamHeaders)

	for name, dst := range map[string]**int{
		ParamWidth:       &raw.Width,
		ParamHeight:      &raw.Height,
		ParamQuality:     &raw.Quality,
		ParamMinLoadTime: &raw.MinLoadTime,
		ParamMaxLoadTime: &raw.MaxLoadTime,
	} {
		n, ok, err := intParam(params, name)
		if err != nil {
			errs[name] = err
			continue
		}
		if ok {
			*dst = &n
		}
	}
	if n, ok, err := cacheTimeParam(params); err != nil {
		errs[ParamCacheTime] = err
	} else if ok {
		raw.CacheTime = &n
	}
	for name, dst := range map[string]**bool{
		ParamFullPage:        &raw.FullPage,
		ParamDarkMode:        &raw.DarkMode,
		ParamTransparent:     &raw.Transparent,
		ParamBlockAds:        &raw.BlockAds,
		ParamPrintBackground: &raw.PrintBackground,
	} {
		b, ok, err := BoolParam(params, name)
		if err != nil {
			errs[name] = err
			continue
		}
		if ok {
			*dst = &b
		}
	}

	if err := raw.Validate(); err != nil {
		var fieldErrs v.Errors
		if !errors.As(err, &fieldErrs) {
			return Request{}, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		for k, fe := range fieldErrs {
			if _, seen := errs[k]; !seen {
				errs[k] = fe
			}
		}
	}
	if len(errs) > 0 {
		return Request{}, fmt.Errorf("%w: %w", ErrValidation, errs)
	}
	return raw.build(params), nil
}

func (r *rawRequest) build(params Params) Request {
	req := Request{
		Params:          params.Clone(),
		URL:             r.URL,
		Width:           derefInt(r.Width, DefaultWidth),
		Height:          derefInt(r.Height, DefaultHeight),
		Kind:            ParseContentKind(r.Format),
		Quality:         derefInt(r.Quality, 0),
		FullPage:        derefBool(r.FullPage, false),
		DarkMode:        derefBool(r.DarkMode, false),
		Transparent:     derefBool(r.Transparent, false),
		BlockAds:        derefBool(r.BlockAds, false),
		PrintBackground: derefBool(r.PrintBackground, true),
		MinLoadTime:     time.Duration(derefInt(r.MinLoadTime, 0)) * time.Millisecond,
		MaxLoadTime:     DefaultMaxLoadTime,
		UserAgent:       ParamString(params, ParamUserAgent),
		Selector:        ParamString(params, ParamSelector),
		WaitForSelector: ParamString(params, ParamWaitForSelector),
		WaitUntil:       WaitCondition(r.WaitUntil),
		PDFFormat:       r.PDFFormat,
		MarginTop:       ParamString(params, ParamMarginTop),
		MarginRight:     ParamString(params, ParamMarginRight),
		MarginBottom:    ParamString(params, ParamMarginBottom),
		MarginLeft:      ParamString(params, ParamMarginLeft),
		APIKey:          ParamString(params, ParamAPIKey),
	}
	if req.APIKey == "" {
		req.APIKey = ParamString(params, ParamAPIKeyAlt)
	}
	if r.MaxLoadTime != nil {
		req.MaxLoadTime = time.Duration(*r.MaxLoadTime) * time.Millisecond
	}
	if r.CacheTime != nil {
		ttl := time.Duration(*r.CacheTime) * time.Second
		req.CacheTime = &ttl
	}
	if r.Headers != "" {
		// Already checked by jsonObject.
		_ = json.Unmarshal([]byte(r.Headers), &req.Headers)
	}
	return req
}

// Spec resolves every rendering default into the renderer-facing description.
func (r Request) Spec() Spec {
	spec := Spec{
		URL:             r.URL,
		Width:           r.Width,
		Height:          r.Height,
		Kind:            r.Kind,
		Quality:         r.Quality,
		FullPage:        r.FullPage,
		DarkMode:        r.DarkMode,
		Transparent:     r.Transparent,
		BlockAds:        r.BlockAds,
		UserAgent:       r.UserAgent,
		Headers:         DefaultHeaders(),
		WaitUntil:       r.WaitUntil,
		MinLoadTime:     r.MinLoadTime,
		Timeout:         r.MaxLoadTime,
		Selector:        r.Selector,
		WaitForSelector: r.WaitForSelector,
		PDF: PDFOptions{
			Format:          orDefault(r.PDFFormat, DefaultPDFFormat),
			PrintBackground: r.PrintBackground,
			MarginTop:       orDefault(r.MarginTop, DefaultMargin),
			MarginRight:     orDefault(r.MarginRight, DefaultMargin),
			MarginBottom:    orDefault(r.MarginBottom, DefaultMargin),
			MarginLeft:      orDefault(r.MarginLeft, DefaultMargin),
		},
	}
	if spec.Width == 0 {
		spec.Width = DefaultWidth
	}
	if spec.Height == 0 {
		spec.Height = DefaultHeight
	}
	if spec.Kind == "" {
		spec.Kind = KindPNG
	}
	if spec.Timeout == 0 {
		spec.Timeout = DefaultMaxLoadTime
	}
	if spec.UserAgent == "" {
		spec.UserAgent = DefaultUserAgent
	}
	for k, val := range r.Headers {
		spec.Headers[k] = val
	}
	if spec.WaitUntil == "" {
		spec.WaitUntil = WaitNetworkIdle2
	}
	// Full-page and slow-page captures always wait for a fully idle network.
	if spec.FullPage || spec.MinLoadTime >= SlowPageThreshold {
		spec.WaitUntil = WaitNetworkIdle0
	}
	if spec.Selector != "" && spec.Kind == KindPDF {
		spec.Kind = KindPNG
	}
	if spec.Kind == KindJPEG && spec.Quality == 0 {
		spec.Quality = DefaultQuality
	}
	return spec
}

// ParamString returns the named parameter rendered as a string, or "" when absent.
func ParamString(params Params, name string) string {
	val, ok := params[name]
	if !ok || val == nil {
		return ""
	}
	return Stringify(val)
}

// Stringify renders a parameter value the way it would appear in a query string.
func Stringify(val any) string {
	switch t := val.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []string:
		if len(t) > 0 {
			return t[0]
		}
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// BoolParam parses a boolean parameter. ok is false when the parameter is absent or empty.
func BoolParam(params Params, name string) (value, ok bool, err error) {
	raw, present := params[name]
	if !present || raw == nil {
		return false, false, nil
	}
	if b, isBool := raw.(bool); isBool {
		return b, true, nil
	}
	s := strings.TrimSpace(Stringify(raw))
	if s == "" {
		return false, false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, false, errors.New("must be true or false")
	}
	return b, true, nil
}

func intParam(params Params, name string) (int, bool, error) {
	s := strings.TrimSpace(ParamString(params, name))
	if s == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, errors.New("must be an integer")
	}
	return n, true, nil
}

// cacheTimeParam accepts a non-negative number of seconds or "false" (caching disabled).
func cacheTimeParam(params Params) (int, bool, error) {
	s := strings.TrimSpace(ParamString(params, ParamCacheTime))
	if strings.EqualFold(s, "false") {
		return 0, true, nil
	}
	return intParam(params, ParamCacheTime)
}

func intBetween(lo, hi int) v.RuleFunc {
	return func(value any) error {
		p, _ := value.(*int)
		if p == nil {
			return nil
		}
		if *p < lo || *p > hi {
			return fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return nil
	}
}

func httpURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("must be an http or https URL")
	}
	return nil
}

func jsonObject(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	var obj map[string]string
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return errors.New("must be a JSON object of string values")
	}
	return nil
}

func derefInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func derefBool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
