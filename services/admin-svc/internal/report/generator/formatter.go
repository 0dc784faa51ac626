package generator

import (
	"fmt"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Локали с таблицами названий месяцев. Первая используется, если запрошенная не совпала.
var (
	supportedLocales = []language.Tag{language.English, language.Arabic, language.Russian}
	localeMatcher    = language.NewMatcher(supportedLocales)

	monthNames = [][12]string{
		{"January", "February", "March", "April", "May", "June",
			"July", "August", "September", "October", "November", "December"},
		{"يناير", "فبراير", "مارس", "أبريل", "مايو", "يونيو",
			"يوليو", "أغسطس", "سبتمبر", "أكتوبر", "نوفمبر", "ديسمبر"},
		{"января", "февраля", "марта", "апреля", "мая", "июня",
			"июля", "августа", "сентября", "октября", "ноября", "декабря"},
	}
)

// Formatter форматирует значения ячеек с учётом локали и часового пояса
type Formatter struct {
	tag     language.Tag
	months  [12]string
	loc     *time.Location
	printer *message.Printer
}

// NewFormatter создаёт форматтер для BCP 47 локали и IANA часового пояса
func NewFormatter(locale, timezone string) (*Formatter, error) {
	requested, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}

	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
	}

	_, idx, _ := localeMatcher.Match(requested)
	tag := supportedLocales[idx]

	return &Formatter{
		tag:     tag,
		months:  monthNames[idx],
		loc:     loc,
		printer: message.NewPrinter(tag),
	}, nil
}

// DefaultFormatter английская локаль, UTC
func DefaultFormatter() *Formatter {
	f, _ := NewFormatter("en", "UTC")
	return f
}

// Tag возвращает выбранную локаль
func (f *Formatter) Tag() language.Tag {
	return f.tag
}

// FormatDate форматирует дату как "5 January 2024" с цифрами локали
func (f *Formatter) FormatDate(t time.Time) string {
	t = t.In(f.loc)
	return fmt.Sprintf("%s %s %s", f.integer(t.Day()), f.months[t.Month()-1], f.integer(t.Year()))
}

// FormatDateTime дата и время "5 January 2024 14:03"
func (f *Formatter) FormatDateTime(t time.Time) string {
	t = t.In(f.loc)
	return fmt.Sprintf("%s %s:%s", f.FormatDate(t), f.pad2(t.Hour()), f.pad2(t.Minute()))
}

func (f *Formatter) integer(n int) string {
	return f.printer.Sprint(number.Decimal(n, number.NoSeparator()))
}

func (f *Formatter) pad2(n int) string {
	return f.printer.Sprint(number.Decimal(n, number.NoSeparator(), number.MinIntegerDigits(2)))
}

// Value приводит значение записи к строке. Даты форматируются по локали, числа без разделителей.
func (f *Formatter) Value(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return f.FormatDate(val)
	case *time.Time:
		if val == nil {
			return ""
		}
		return f.FormatDate(*val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
