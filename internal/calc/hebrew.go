package calc

import (
	"fmt"
	"strings"
	"time"

	"github.com/hebcal/hdate"
)

// Hebrew months, numbered from Nisan as in the traditional reckoning of
// months (the year itself starts at Tishrei).
const (
	Nisan    = int(hdate.Nisan)
	Iyyar    = int(hdate.Iyyar)
	Sivan    = int(hdate.Sivan)
	Tamuz    = int(hdate.Tamuz)
	Av       = int(hdate.Av)
	Elul     = int(hdate.Elul)
	Tishrei  = int(hdate.Tishrei)
	Cheshvan = int(hdate.Cheshvan)
	Kislev   = int(hdate.Kislev)
	Tevet    = int(hdate.Tevet)
	Shvat    = int(hdate.Shvat)
	Adar     = int(hdate.Adar1) // Adar I in leap years
	Adar2    = int(hdate.Adar2)
)

var monthNamesEnglish = [...]string{
	"", "Nisan", "Iyyar", "Sivan", "Tamuz", "Av", "Elul",
	"Tishrei", "Cheshvan", "Kislev", "Tevet", "Sh'vat", "Adar", "Adar II",
}

var monthNamesHebrew = [...]string{
	"", "ניסן", "אייר", "סיון", "תמוז", "אב", "אלול",
	"תשרי", "חשון", "כסלו", "טבת", "שבט", "אדר", "אדר ב׳",
}

var weekdayNamesHebrew = [...]string{
	"יום ראשון", "יום שני", "יום שלישי", "יום רביעי", "יום חמישי", "יום שישי", "שבת",
}

// HebrewDate is a civil date converted to the Hebrew calendar.
type HebrewDate struct {
	Year    int          `json:"year"`
	Month   int          `json:"month"`
	Day     int          `json:"day"`
	Weekday time.Weekday `json:"weekday"`
	// Formatted is the Hebrew rendering, e.g. "יום ראשון, ז׳ חשון תשפ״ז".
	Formatted string `json:"formatted"`
	// English is e.g. "7 Cheshvan 5787".
	English string `json:"english"`
}

// ToHebrew converts the civil date of t, read in t's own location.
func ToHebrew(t time.Time) HebrewDate {
	hd := hdate.FromTime(t)
	y, m, d := hd.Year(), int(hd.Month()), hd.Day()
	wd := t.Weekday()
	return HebrewDate{
		Year:      y,
		Month:     m,
		Day:       d,
		Weekday:   wd,
		Formatted: fmt.Sprintf("%s, %s %s %s", weekdayNamesHebrew[wd], Gematriya(d), hebrewMonthName(m, y), Gematriya(y%1000)),
		English:   fmt.Sprintf("%d %s %d", d, englishMonthName(m, y), y),
	}
}

// HebrewWeekdayName returns e.g. "יום שני".
func HebrewWeekdayName(wd time.Weekday) string {
	return weekdayNamesHebrew[wd]
}

func hebrewMonthName(m, y int) string {
	if m == Adar && hdate.IsLeapYear(y) {
		return "אדר א׳"
	}
	return monthNamesHebrew[m]
}

func englishMonthName(m, y int) string {
	if m == Adar && hdate.IsLeapYear(y) {
		return "Adar I"
	}
	return monthNamesEnglish[m]
}

// Gematriya writes 1..999 in Hebrew letters with geresh/gershayim.
// 15 and 16 use the customary ט״ו and ט״ז.
func Gematriya(n int) string {
	if n <= 0 || n > 999 {
		return fmt.Sprint(n)
	}
	var letters []rune
	for n >= 400 {
		letters = append(letters, 'ת')
		n -= 400
	}
	hundreds := []rune{0, 'ק', 'ר', 'ש'}
	if n >= 100 {
		letters = append(letters, hundreds[n/100])
		n %= 100
	}
	switch n {
	case 15:
		letters = append(letters, 'ט', 'ו')
		n = 0
	case 16:
		letters = append(letters, 'ט', 'ז')
		n = 0
	}
	tens := []rune{0, 'י', 'כ', 'ל', 'מ', 'נ', 'ס', 'ע', 'פ', 'צ'}
	ones := []rune{0, 'א', 'ב', 'ג', 'ד', 'ה', 'ו', 'ז', 'ח', 'ט'}
	if n >= 10 {
		letters = append(letters, tens[n/10])
		n %= 10
	}
	if n > 0 {
		letters = append(letters, ones[n])
	}

	var b strings.Builder
	if len(letters) == 1 {
		b.WriteRune(letters[0])
		b.WriteRune('׳')
		return b.String()
	}
	for i, r := range letters {
		if i == len(letters)-1 {
			b.WriteRune('״')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isYomTov reports whether the Hebrew date is a day on which work is
// forbidden (Shabbat aside). Outside Israel the second festival days are
// included.
func isYomTov(m, d int, inIsrael bool) bool {
	switch m {
	case Tishrei:
		switch d {
		case 1, 2, 10, 15, 22:
			return true
		case 16, 23:
			return !inIsrael
		}
	case Nisan:
		switch d {
		case 15, 21:
			return true
		case 16, 22:
			return !inIsrael
		}
	case Sivan:
		switch d {
		case 6:
			return true
		case 7:
			return !inIsrael
		}
	}
	return false
}

// HasCandleLighting is true on Fridays and on any day followed by a Yom
// Tov, including the first day of a two-day festival outside Israel.
func HasCandleLighting(date time.Time, inIsrael bool) bool {
	if date.Weekday() == time.Friday {
		return true
	}
	y, mo, d := date.Date()
	next := hdate.FromTime(time.Date(y, mo, d+1, 12, 0, 0, 0, time.UTC))
	return isYomTov(int(next.Month()), next.Day(), inIsrael)
}
