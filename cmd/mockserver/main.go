// Command mockserver is a stand-in DataService for local development
// and demos. It serves the same API surface as the production service
// with deterministic synthetic data: availability windows derived from
// a fixed table, the service's volume-estimate formula, and generated
// CSV payloads.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/meteoci/station-export/internal/domain"
)

const missingValue = "-99999"

type stationSeed struct {
	station   domain.Station
	firstDate time.Time // zero means the station has no recorded data
}

var seeds = []stationSeed{
	{domain.Station{ID: "CI_BINGERVILLE", Label: "BINGERVILLE", Region: "Abidjan", Type: domain.StationUrban, Lat: 5.35, Lon: -3.88}, date(2018, 3, 15)},
	{domain.Station{ID: "CI_ABOBO-MAIRIE", Label: "ABOBO-MAIRIE", Region: "Abidjan", Type: domain.StationUrban, Lat: 5.43, Lon: -4.02}, date(2019, 7, 1)},
	{domain.Station{ID: "CI_YAMOUSSOUKRO", Label: "YAMOUSSOUKRO", Region: "Lacs", Type: domain.StationUrban, Lat: 6.82, Lon: -5.28}, date(2017, 1, 10)},
	{domain.Station{ID: "CI_TIEBISSOU", Label: "TIEBISSOU", Region: "Lacs", Type: domain.StationRural, Lat: 7.16, Lon: -5.22}, date(2021, 11, 5)},
	{domain.Station{ID: "CI_KORHOGO", Label: "KORHOGO", Region: "Savanes", Type: domain.StationRural, Lat: 9.46, Lon: -5.63}, time.Time{}},
}

var categories = map[string]struct {
	Label  string             `json:"label"`
	Params []domain.Parameter `json:"params"`
}{
	"temperature": {"Temperature", []domain.Parameter{
		{ID: "Temp._inst", Label: "Instantaneous temperature"},
		{ID: "Temp._mini", Label: "Minimum temperature"},
		{ID: "Temp._maxi", Label: "Maximum temperature"},
		{ID: "Td", Label: "Dew point"},
	}},
	"humidity": {"Humidity", []domain.Parameter{
		{ID: "Hum._inst", Label: "Instantaneous humidity"},
		{ID: "Hum._mini", Label: "Minimum humidity"},
		{ID: "Hum._maxi", Label: "Maximum humidity"},
	}},
	"precipitation": {"Precipitation", []domain.Parameter{
		{ID: "Cum._pluie", Label: "Rainfall accumulation"},
		{ID: "Rr24h", Label: "24h rainfall"},
		{ID: "Pluie_maxi", Label: "Maximum intensity"},
	}},
	"wind": {"Wind", []domain.Parameter{
		{ID: "FF_moy", Label: "Mean speed"},
		{ID: "FF_maxi", Label: "Maximum gust"},
	}},
	"pressure": {"Pressure", []domain.Parameter{
		{ID: "Pres._inst", Label: "Instantaneous pressure"},
		{ID: "Pmer", Label: "Sea-level pressure"},
	}},
}

func main() {
	addr := flag.String("addr", ":5000", "listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	srv := &server{logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", srv.handleHealth)
	mux.HandleFunc("/api/stations", srv.handleStations)
	mux.HandleFunc("/api/parameters", srv.handleParameters)
	mux.HandleFunc("/api/stations/availability", srv.handleAvailability)
	mux.HandleFunc("/api/estimate", srv.handleEstimate)
	mux.HandleFunc("/api/download", srv.handleDownload)

	logger.Info("mock DataService listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

type server struct {
	logger *slog.Logger
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *server) handleStations(w http.ResponseWriter, r *http.Request) {
	filter := domain.StationType(r.URL.Query().Get("station_type"))
	stations := make([]domain.Station, 0, len(seeds))
	for _, seed := range seeds {
		if filter != "" && seed.station.Type != filter {
			continue
		}
		stations = append(stations, seed.station)
	}
	writeSuccess(w, stations)
}

func (s *server) handleParameters(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, categories)
}

func (s *server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stations    []string `json:"stations"`
		Granularity string   `json:"granularity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Stations) == 0 {
		writeError(w, http.StatusBadRequest, `parameter "stations" must be a non-empty list`)
		return
	}

	now := time.Now().UTC()
	result := make(map[string]any, len(req.Stations))
	for _, id := range req.Stations {
		seed, ok := findSeed(id)
		if !ok || seed.firstDate.IsZero() {
			result[id] = map[string]any{
				"has_data": false,
				"error":    "no recorded data for this station",
				"label":    domain.StationLabel(id),
			}
			continue
		}
		days := int(now.Sub(seed.firstDate).Hours() / 24)
		result[id] = map[string]any{
			"has_data":           true,
			"first_date":         seed.firstDate.Format("2006-01-02T15:04:05"),
			"last_date":          now.Format("2006-01-02T15:04:05"),
			"days_count":         days,
			"duration_formatted": domain.FormatDuration(days),
			"label":              domain.StationLabel(id),
			"granularity":        req.Granularity,
		}
	}
	writeSuccess(w, result)
}

func (s *server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeExportRequest(w, r)
	if !ok {
		return
	}
	start, end, ok := parseDates(w, req)
	if !ok {
		return
	}

	rows := estimateRows(start, end, req.Granularity, len(req.Stations))
	bytesPerRow := 20 + len(req.Params)*10
	sizeKB := rows * bytesPerRow / 1024

	writeSuccess(w, map[string]any{
		"rows":    rows,
		"size_kb": sizeKB,
		"size_mb": math.Round(float64(sizeKB)/1024*100) / 100,
	})
}

func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeExportRequest(w, r)
	if !ok {
		return
	}
	start, end, ok := parseDates(w, req)
	if !ok {
		return
	}
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, "start date must be before end date")
		return
	}

	payload, rows := generateCSV(req, start, end)
	if rows == 0 {
		writeError(w, http.StatusNotFound, "no data available for the selected period")
		return
	}

	filename := domain.ExportFilename(req.Stations, start, end)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(payload) //nolint:errcheck // best-effort response body
	s.logger.Info("served download", "file", filename, "rows", rows)
}

// estimateRows implements the service's volume formula: data points
// per station for the period at the given granularity.
func estimateRows(start, end time.Time, granularity string, numStations int) int {
	delta := end.Sub(start)
	var points float64
	switch granularity {
	case "U":
		points = delta.Seconds() / 60
	case "X":
		points = delta.Seconds() / 360
	case "H":
		points = delta.Hours()
	case "J", "D":
		points = delta.Hours() / 24
	default:
		points = delta.Hours()
	}
	return int(points) * numStations
}

// generateCSV builds a deterministic payload: one row per station per
// day, ordered by station then date, with synthetic values and the
// occasional missing-data marker.
func generateCSV(req exportRequest, start, end time.Time) ([]byte, int) {
	var buf strings.Builder
	cw := csv.NewWriter(&buf)

	header := append([]string{"Station", "Date", "Time"}, req.Params...)
	cw.Write(header) //nolint:errcheck // strings.Builder cannot fail

	rows := 0
	for _, id := range req.Stations {
		seed, ok := findSeed(id)
		if !ok || seed.firstDate.IsZero() {
			continue
		}
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			record := []string{domain.StationLabel(id), day.Format(domain.DateFormat), "00:00"}
			for i := range req.Params {
				record = append(record, syntheticValue(id, day, i))
			}
			cw.Write(record) //nolint:errcheck // strings.Builder cannot fail
			rows++
		}
	}
	cw.Flush()
	return []byte(buf.String()), rows
}

// syntheticValue derives a stable pseudo-measurement; every 17th cell
// is a missing-data marker so consumers see the real-world shape.
func syntheticValue(stationID string, day time.Time, paramIdx int) string {
	h := 0
	for _, c := range stationID {
		h = h*31 + int(c)
	}
	n := (h + day.YearDay()*7 + paramIdx*13) % 1000
	if n%17 == 0 {
		return missingValue
	}
	return strconv.FormatFloat(float64(n)/10, 'f', 1, 64)
}

type exportRequest struct {
	Stations    []string `json:"stations"`
	Params      []string `json:"params"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Granularity string   `json:"granularity"`
}

func decodeExportRequest(w http.ResponseWriter, r *http.Request) (exportRequest, bool) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	checks := []struct {
		field string
		empty bool
	}{
		{"stations", len(req.Stations) == 0},
		{"params", len(req.Params) == 0},
		{"start_date", req.StartDate == ""},
		{"end_date", req.EndDate == ""},
	}
	for _, c := range checks {
		if c.empty {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("parameter %q required", c.field))
			return req, false
		}
	}
	if req.Granularity == "" {
		req.Granularity = "H"
	}
	return req, true
}

func parseDates(w http.ResponseWriter, req exportRequest) (time.Time, time.Time, bool) {
	start, err1 := time.Parse(domain.DateFormat, req.StartDate)
	end, err2 := time.Parse(domain.DateFormat, req.EndDate)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return start, end, false
	}
	return start, end, true
}

func findSeed(id string) (stationSeed, bool) {
	for _, seed := range seeds {
		if seed.station.ID == id {
			return seed, true
		}
	}
	return stationSeed{}, false
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"status": "error", "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
