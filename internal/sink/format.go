package sink

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fastjson"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/plog/internal/levels"
	"github.com/roach88/plog/internal/record"
)

// Formatting constants.
const (
	FieldSeparator   = " | "
	DefaultSeparator = "\n"
	TimeLayout       = "2006-01-02 15:04:05.000000"
)

// Tags for the success and auto columns.
const (
	TagSuccess = "SUCCESS"
	TagError   = "ERROR"
	TagAuto    = "AUTO"
	TagManual  = "MANUAL"
)

// FormatFunc renders a record without the trailing separator.
type FormatFunc func(*record.Record) string

// Formatter renders records in the canonical column order:
//
//	time | level | success | auto | message | where | input | locals |
//	result | time of work | exception | traceback | extras...
//
// Columns whose fields are absent are skipped. Level, success and auto are
// padded to fixed widths chosen on first use.
type Formatter struct {
	levels *levels.Registry

	// LevelStyle, when set, decorates the padded level column.
	LevelStyle func(level int, padded string) string

	once       sync.Once
	levelWidth int
	tagWidth   int
	autoWidth  int

	parsers fastjson.ParserPool
}

// NewFormatter creates a formatter resolving level names through lv.
func NewFormatter(lv *levels.Registry) *Formatter {
	if lv == nil {
		lv = levels.NewDefault()
	}
	return &Formatter{levels: lv}
}

func (f *Formatter) widths() {
	f.once.Do(func() {
		f.levelWidth = f.levels.Width()
		f.tagWidth = max(len(TagSuccess), len(TagError))
		f.autoWidth = max(len(TagAuto), len(TagManual))
	})
}

// Format renders r as one line without separator.
func (f *Formatter) Format(r *record.Record) string {
	f.widths()

	var cols []string
	if t, ok := r.Time(); ok {
		cols = append(cols, t.Format(TimeLayout))
	}

	level := pad(f.levels.Name(r.Level()), f.levelWidth)
	if f.LevelStyle != nil {
		level = f.LevelStyle(r.Level(), level)
	}
	cols = append(cols, level)

	if r.Has(record.FieldSuccess) {
		tag := TagSuccess
		if !r.Success() {
			tag = TagError
		}
		cols = append(cols, pad(tag, f.tagWidth))
	}

	auto := TagManual
	if r.Auto() {
		auto = TagAuto
	}
	cols = append(cols, pad(auto, f.autoWidth))

	if r.Has(record.FieldMessage) {
		cols = append(cols, text(r.Message()))
	}
	if where := where(r); where != "" {
		cols = append(cols, "where: "+where)
	}
	for _, c := range []struct{ field, label string }{
		{record.FieldInputVariables, "input"},
		{record.FieldLocalVariables, "locals"},
		{record.FieldResult, "result"},
	} {
		if v, ok := r.Get(c.field); ok {
			cols = append(cols, c.label+": "+f.display(v))
		}
	}
	if v, ok := r.Get(record.FieldTimeOfWork); ok {
		cols = append(cols, "time of work: "+seconds(v))
	}
	if exc := exception(r); exc != "" {
		cols = append(cols, "exception: "+exc)
	}
	if v, ok := r.Get(record.FieldTraceback); ok {
		cols = append(cols, "traceback: "+f.traceback(v))
	}

	for name, v := range r.All() {
		if record.IsKnown(name) || record.IsInternal(name) {
			continue
		}
		cols = append(cols, fmt.Sprintf("%s: %s", name, strconv.Quote(norm.NFC.String(plain(v)))))
	}

	return strings.Join(cols, FieldSeparator)
}

// display renders a field for humans. Result envelopes show their value;
// other JSON fragments are shown compact.
func (f *Formatter) display(v any) string {
	frag, ok := v.(record.JSON)
	if !ok {
		return text(plain(v))
	}

	p := f.parsers.Get()
	defer f.parsers.Put(p)

	val, err := p.Parse(string(frag))
	if err != nil {
		return text(string(frag))
	}
	if val.Type() == fastjson.TypeObject && val.Exists("type") && val.Exists("value") {
		inner := val.Get("value")
		if inner.Type() == fastjson.TypeString {
			return text(string(inner.GetStringBytes()))
		}
		return text(inner.String())
	}
	return text(val.String())
}

// traceback joins a JSON array of frames with " <- ".
func (f *Formatter) traceback(v any) string {
	frag, ok := v.(record.JSON)
	if !ok {
		return text(plain(v))
	}

	p := f.parsers.Get()
	defer f.parsers.Put(p)

	val, err := p.Parse(string(frag))
	if err != nil || val.Type() != fastjson.TypeArray {
		return text(string(frag))
	}
	frames := val.GetArray()
	parts := make([]string, 0, len(frames))
	for _, fr := range frames {
		if fr.Type() == fastjson.TypeString {
			parts = append(parts, string(fr.GetStringBytes()))
		} else {
			parts = append(parts, fr.String())
		}
	}
	return text(strings.Join(parts, " <- "))
}

func where(r *record.Record) string {
	var parts []string
	for _, field := range []string{record.FieldModule, record.FieldClass, record.FieldFunction} {
		if s, ok := r.Value(field).(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ".")
}

func exception(r *record.Record) string {
	typ, _ := r.Value(record.FieldExceptionType).(string)
	msg, hasMsg := r.Value(record.FieldExceptionMessage).(string)
	switch {
	case typ == "" && !hasMsg:
		return ""
	case typ == "":
		return strconv.Quote(norm.NFC.String(msg))
	default:
		return fmt.Sprintf("%s(%s)", typ, strconv.Quote(norm.NFC.String(msg)))
	}
}

func seconds(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', 6, 64) + " sec"
	case int64:
		return strconv.FormatInt(n, 10) + " sec"
	default:
		return plain(v)
	}
}

// plain renders a normalized field value without decoration.
func plain(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case record.JSON:
		return string(val)
	case time.Time:
		return val.Format(TimeLayout)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// text keeps a column on one line and in NFC.
func text(s string) string {
	s = norm.NFC.String(s)
	if strings.ContainsAny(s, "\r\n") {
		s = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\r`).Replace(s)
	}
	return s
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
