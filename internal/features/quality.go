package features

import "math"

const (
	FlagDateOutOfRange     = "date_out_of_range"
	FlagHourOutOfRange     = "hour_out_of_range"
	FlagPressureOutOfRange = "pressure_out_of_range"
	FlagDewPointUnlikely   = "dew_point_unlikely"
	FlagWindDirInvalid     = "wind_dir_invalid"
	FlagRatioNegative      = "ratio_negative"
	FlagSumNegative        = "sum_negative"
)

// QualityFlags reports readings that are implausible but still usable. The
// flags are advisory: a flagged vector is predicted as normal.
// Missing (NaN) and absent values are never flagged.
func QualityFlags(v Vector) []string {
	var flags []string
	present := func(name string) (float64, bool) {
		x, ok := v[name]
		return x, ok && !math.IsNaN(x)
	}

	month, okM := present("month")
	day, okD := present("day")
	if (okM && (month < 1 || month > 12)) || (okD && (day < 1 || day > 31)) {
		flags = append(flags, FlagDateOutOfRange)
	}

	if hour, ok := present("hour"); ok && (hour < 0 || hour > 23) {
		flags = append(flags, FlagHourOutOfRange)
	}

	if pres, ok := present("PRES"); ok && (pres < 900 || pres > 1100) {
		flags = append(flags, FlagPressureOutOfRange)
	}

	if dewp, ok := present("DEWP"); ok && (dewp < -50 || dewp > 40) {
		flags = append(flags, FlagDewPointUnlikely)
	}

	sin, okS := present("wd_sin")
	cos, okC := present("wd_cos")
	if (okS && math.Abs(sin) > 1) || (okC && math.Abs(cos) > 1) {
		flags = append(flags, FlagWindDirInvalid)
	}

	for _, name := range []string{"CO_ratio", "O3_ratio"} {
		if x, ok := present(name); ok && x < 0 {
			flags = append(flags, FlagRatioNegative)
			break
		}
	}

	for _, name := range []string{
		"PM2.5_monthly_sum", "PM10_monthly_sum", "SO2_monthly_sum",
		"NO2_monthly_sum", "CO_monthly_sum", "O3_monthly_sum",
	} {
		if x, ok := present(name); ok && x < 0 {
			flags = append(flags, FlagSumNegative)
			break
		}
	}

	return flags
}
