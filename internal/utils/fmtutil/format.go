// Package fmtutil provides formatting utilities for human-readable output.
// Package fmtutil 提供用于人类可读输出的格式化工具。
package fmtutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatNumberWithComma formats a number with thousand separators.
// FormatNumberWithComma 格式化数字，添加千位分隔符。
func FormatNumberWithComma(n uint64) string {
	s := strconv.FormatUint(n, 10)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// FormatDuration formats a duration as "1d 2h 3m 4s", dropping zero parts.
// FormatDuration 将持续时间格式化为 "1d 2h 3m 4s"，省略为零的部分。
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.String()
	}

	units := []struct {
		n      int
		suffix string
	}{
		{int(d.Hours()) / 24, "d"},
		{int(d.Hours()) % 24, "h"},
		{int(d.Minutes()) % 60, "m"},
		{int(d.Seconds()) % 60, "s"},
	}

	var parts []string
	for _, u := range units {
		if u.n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", u.n, u.suffix))
		}
	}
	return strings.Join(parts, " ")
}

// FormatAge describes how long ago t was, or "never" for the zero time.
// FormatAge 描述 t 距今多久，零值时间返回 "never"。
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	age := now.Sub(t).Truncate(time.Second)
	if age < time.Second {
		return "just now"
	}
	return FormatDuration(age) + " ago"
}
