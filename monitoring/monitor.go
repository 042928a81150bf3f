// Package monitoring turns a cache model into a small web server, so that a
// running experiment can be inspected from a browser.
package monitoring

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"

	"github.com/sarchlab/cachemodel/cache"
)

// A Monitor serves the statistics of registered caches over HTTP.
type Monitor struct {
	caches      []*cache.Comp
	portNumber  int
	openBrowser bool
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port to listen on. Ports below 1000 are rejected
// and replaced with a random free port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is not allowed for the monitoring server. "+
				"Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the monitor URL in the default
// browser.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true
	return m
}

// RegisterCache registers a cache to be monitored.
func (m *Monitor) RegisterCache(c *cache.Comp) {
	m.caches = append(m.caches, c)
}

// StartServer starts serving in the background and returns the URL it
// listens on.
func (m *Monitor) StartServer() string {
	r := mux.NewRouter()
	r.HandleFunc("/api/caches", m.listCaches)
	r.HandleFunc("/api/stats/{name}", m.cacheStats)
	r.HandleFunc("/api/amat/{name}", m.cacheAMAT)
	r.HandleFunc("/api/config/{name}", m.cacheConfig)
	r.HandleFunc("/api/resources", m.listResources)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring cache model with %s\n", url)

	go func() {
		dieOnErr(http.Serve(listener, r))
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open browser: %s\n", err)
		}
	}

	return url
}

func (m *Monitor) findCache(name string) *cache.Comp {
	for _, c := range m.caches {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

func (m *Monitor) listCaches(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.caches))
	for _, c := range m.caches {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) cacheStats(w http.ResponseWriter, r *http.Request) {
	c := m.findCache(mux.Vars(r)["name"])
	if c == nil {
		http.Error(w, "cache not found", http.StatusNotFound)
		return
	}

	writeJSON(w, c.StatisticsSnapshot())
}

type amatRsp struct {
	HitTime     float64 `json:"hit_time"`
	MissPenalty float64 `json:"miss_penalty"`
	AMAT        float64 `json:"amat"`
}

func (m *Monitor) cacheAMAT(w http.ResponseWriter, r *http.Request) {
	c := m.findCache(mux.Vars(r)["name"])
	if c == nil {
		http.Error(w, "cache not found", http.StatusNotFound)
		return
	}

	hitTime, err := queryFloat(r, "hit_time", 1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	missPenalty, err := queryFloat(r, "miss_penalty", 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, amatRsp{
		HitTime:     hitTime,
		MissPenalty: missPenalty,
		AMAT:        c.AMAT(hitTime, missPenalty),
	})
}

func (m *Monitor) cacheConfig(w http.ResponseWriter, r *http.Request) {
	c := m.findCache(mux.Vars(r)["name"])
	if c == nil {
		http.Error(w, "cache not found", http.StatusNotFound)
		return
	}

	writeJSON(w, c.Config())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memoryInfo, err := proc.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	})
}

func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s: %s", key, raw)
	}

	return v, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	bytes, err := json.Marshal(v)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
