package features

// Example returns a reference reading for the Dongsi station at 10:00 on
// 2023-07-15, useful for smoke testing a deployment.
func Example() Vector {
	v := Vector{
		"year": 2023, "month": 7, "day": 15, "hour": 10,
		"PRES": 1010, "DEWP": 15,
		"PM2.5_log": 3.2, "O3_log": 2.9, "PM10_log": 3.5, "WSPM_log": 1.4, "NO2_log": 2.3,
		"PM2.5_monthly_sum": 180, "PM10_monthly_sum": 250, "SO2_monthly_sum": 35,
		"NO2_monthly_sum": 80, "CO_monthly_sum": 22, "O3_monthly_sum": 110,
		"CO_ratio": 0.8, "O3_ratio": 0.6,
		"TEMP_PRES_interaction": 15000,
		"PM10_EMA_24h": 140, "SO2_EMA_24h": 30, "NO2_EMA_24h": 70, "CO_EMA_24h": 15, "O3_EMA_24h": 90,
		"wd_sin": 0.5, "wd_cos": -0.3,
	}
	SetStation(v, "Dongsi")
	return v
}

// SetStation writes the one-hot station indicators for station into v.
func SetStation(v Vector, station string) {
	for _, s := range Stations {
		if s == station {
			v[StationPrefix+s] = 1
		} else {
			v[StationPrefix+s] = 0
		}
	}
}
