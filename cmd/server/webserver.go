package main

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	fractal "github.com/marben/fractal_explorer"
	"github.com/marben/fractal_explorer/gpu"
	"github.com/marben/fractal_explorer/locations"
)

// webServer creates the http server: the static files from the -static
// folder, the shader, the rest api and the websocket endpoint.
func (s *server) webServer(port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.websocketHandler)
	mux.HandleFunc("GET /shader.wgsl", shaderHandler)
	mux.HandleFunc("GET /api/landmarks", landmarksHandler)
	mux.HandleFunc("GET /api/locations", s.listLocations)
	mux.HandleFunc("POST /api/locations", s.saveLocation)
	mux.HandleFunc("DELETE /api/locations", s.clearLocations)
	mux.HandleFunc("GET /api/locations/{id}", s.getLocation)
	mux.HandleFunc("DELETE /api/locations/{id}", s.deleteLocation)
	mux.HandleFunc("GET /api/heightmap", s.heightmap)
	mux.Handle("/", http.FileServer(http.Dir(s.cfg.static)))
	return mux
}

// websocketHandler serves one client until it disconnects.
func (s *server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Println(err)
		return
	}
	// Only commands are read; they are small json objects.
	c.SetReadLimit(64 << 10)

	log.Printf("got connection from: %s", r.RemoteAddr)
	err = newClient(s, c, r.RemoteAddr).serve(r.Context())
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		log.Printf("%s disconnected", r.RemoteAddr)
	default:
		log.Printf("%s: %v", r.RemoteAddr, err)
	}
	c.Close(websocket.StatusNormalClosure, "")
}

func shaderHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/wgsl; charset=utf-8")
	fmt.Fprint(w, gpu.WGSL())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	if errors.Is(err, locations.ErrNotFound) {
		code = http.StatusNotFound
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *server) listLocations(w http.ResponseWriter, r *http.Request) {
	by, err := locations.ParseSort(r.URL.Query().Get("sort"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.locations.List(by))
}

func (s *server) saveLocation(w http.ResponseWriter, r *http.Request) {
	var l locations.Location
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&l); err != nil {
		writeError(w, fmt.Errorf("decode location: %w", err))
		return
	}
	saved, err := s.locations.Save(l)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *server) clearLocations(w http.ResponseWriter, _ *http.Request) {
	s.locations.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) locationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, fmt.Errorf("location id: %w", err))
		return uuid.UUID{}, false
	}
	return id, true
}

func (s *server) getLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.locationID(w, r)
	if !ok {
		return
	}
	l, err := s.locations.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *server) deleteLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.locationID(w, r)
	if !ok {
		return
	}
	if err := s.locations.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const maxHeightmapCells = 1 << 20

// heightmap answers with width*height little-endian float32 heights, row by row.
//
//	GET /api/heightmap?width=256&height=256&cx=-0.5&cy=0&scale=3&type=mandelbrot&maxIter=256&exaggeration=0.07
func (s *server) heightmap(w http.ResponseWriter, r *http.Request) {
	if !s.features.ThreeD {
		http.Error(w, "3d view disabled", http.StatusNotFound)
		return
	}
	q := query{r: r}
	width := q.int("width", 256)
	height := q.int("height", 256)
	hp := fractal.HeightmapParams{
		Params: fractal.DefaultParams,
		View: fractal.View{
			CenterX: q.float("cx", fractal.DefaultView.CenterX),
			CenterY: q.float("cy", fractal.DefaultView.CenterY),
			Scale:   q.float("scale", fractal.DefaultView.Scale),
		},
		MaxIter:      q.int("maxIter", s.cfg.session.MaxIter),
		Exaggeration: q.float("exaggeration", fractal.DefaultExaggeration),
	}
	if t := r.URL.Query().Get("type"); t != "" {
		typ, err := fractal.ParseType(t)
		if err != nil {
			writeError(w, err)
			return
		}
		hp.Params.Type = typ
	}
	hp.Params.Julia = complex(q.float("jr", real(hp.Params.Julia)), q.float("ji", imag(hp.Params.Julia)))
	if q.err != nil {
		writeError(w, q.err)
		return
	}
	if width > 0 && height > 0 && width > maxHeightmapCells/height {
		writeError(w, fmt.Errorf("%w: heightmap %dx%d is too large", fractal.ErrInvalidSpec, width, height))
		return
	}

	heights, err := fractal.Heightmap(width, height, hp)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]byte, 0, 4*len(heights))
	for _, h := range heights {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(h))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Heightmap-Width", strconv.Itoa(width))
	w.Header().Set("X-Heightmap-Height", strconv.Itoa(height))
	w.Write(out)
}

// query reads optional numeric parameters and keeps the first parse error.
type query struct {
	r   *http.Request
	err error
}

func (q *query) int(name string, def int) int {
	s := q.r.URL.Query().Get(name)
	if s == "" || q.err != nil {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		q.err = fmt.Errorf("%w: %s=%q", fractal.ErrInvalidSpec, name, s)
		return def
	}
	return v
}

func (q *query) float(name string, def float64) float64 {
	s := q.r.URL.Query().Get(name)
	if s == "" || q.err != nil {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		q.err = fmt.Errorf("%w: %s=%q", fractal.ErrInvalidSpec, name, s)
		return def
	}
	return v
}
