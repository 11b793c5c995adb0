package ws

import (
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/keycast/keycast/internal/input"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status    string         `json:"status"`
	Clients   int            `json:"clients"`
	Uptime    string         `json:"uptime"`
	Input     InputStatus    `json:"input"`
	Process   *ProcessStatus `json:"process,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type InputStatus struct {
	input.Capability
	Lines []string `json:"lines"`
}

type ProcessStatus struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Threads    int32   `json:"threads"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:    "running",
		Clients:   s.registry.Len(),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Process:   processStatus(),
		Timestamp: time.Now().UTC(),
	}
	resp.Input.Lines = []string{}
	if s.input != nil {
		resp.Input.Capability = s.input.Capability()
		resp.Input.Lines = s.input.LineNames()
	}

	writeJSON(w, http.StatusOK, resp)
}

// processStatus samples this process through gopsutil. Sampling errors
// leave the section out rather than failing the request.
func processStatus() *ProcessStatus {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil
	}
	ps := &ProcessStatus{PID: p.Pid}
	if mem, err := p.MemoryInfo(); err == nil {
		ps.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercent(); err == nil {
		ps.CPUPercent = cpu
	}
	if n, err := p.NumThreads(); err == nil {
		ps.Threads = n
	}
	return ps
}
