// Command constellationd is a demo HTTP front-end over Constellation: it
// accepts simple DAG definitions, runs them synchronously or
// asynchronously, and exposes cancellation and health endpoints.
// Grounded on services/orchestrator/main.go's http.Server + signal-based
// shutdown and services/orchestrator/scheduler.go's cron-driven triggers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/VledicFranco/constellation-engine-sub007/internal/dagspec"
	"github.com/VledicFranco/constellation-engine-sub007/internal/logging"
	"github.com/VledicFranco/constellation-engine-sub007/internal/otelinit"
	"github.com/VledicFranco/constellation-engine-sub007/internal/runtime"
	"github.com/VledicFranco/constellation-engine-sub007/internal/value"

	constellation "github.com/VledicFranco/constellation-engine-sub007"
	"github.com/VledicFranco/constellation-engine-sub007/modules"
)

// taskSpec is the wire form of one DAG node in a submitted workflow.
type taskSpec struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // "uppercase" or "http"
	DependsOn string `json:"depends_on,omitempty"`
	URL       string `json:"url,omitempty"`
	Method    string `json:"method,omitempty"`
}

// workflowRequest is the wire form posted to /v1/dag.
type workflowRequest struct {
	Name   string     `json:"name"`
	Tasks  []taskSpec `json:"tasks"`
	Output string     `json:"output"` // task id whose "out"/"body" to expose
}

type compiledWorkflow struct {
	spec    *dagspec.DagSpec
	modules map[dagspec.ModuleID]constellation.Module
}

// compile turns a workflowRequest into a DagSpec plus its Module set. Each
// task has at most one upstream dependency, bound to its "in" (uppercase)
// or "body" (http) input port; this keeps the demo wire format small while
// still exercising multi-node DAGs end to end.
func compile(req workflowRequest) (*compiledWorkflow, error) {
	moduleSpecs := make(map[dagspec.ModuleID]dagspec.ModuleNodeSpec)
	dataSpecs := make(map[dagspec.DataID]dagspec.DataNodeSpec)
	mods := make(map[dagspec.ModuleID]constellation.Module)
	var inEdges []dagspec.InEdge
	var outEdges []dagspec.OutEdge

	for _, t := range req.Tasks {
		mid := dagspec.ModuleID(t.ID)
		outData := dagspec.DataID(t.ID + "_out")

		var consumes map[string]value.Type
		var inPort, outPort string
		switch t.Type {
		case "uppercase":
			consumes = map[string]value.Type{"in": value.String()}
			inPort, outPort = "in", "out"
			mods[mid] = constellation.ModuleFunc(uppercase)
		case "http":
			consumes = map[string]value.Type{"body": value.String()}
			inPort, outPort = "body", "body"
			mods[mid] = modules.NewHTTPModule(t.URL, t.Method, nil)
		default:
			return nil, fmt.Errorf("constellationd: unknown task type %q", t.Type)
		}

		moduleSpecs[mid] = dagspec.ModuleNodeSpec{
			Name:     t.ID,
			Consumes: consumes,
			Produces: map[string]value.Type{outPort: value.String()},
		}
		dataSpecs[outData] = dagspec.DataNodeSpec{Name: t.ID + "_out", Type: value.String(), PortBindings: map[dagspec.ModuleID]string{mid: outPort}}
		outEdges = append(outEdges, dagspec.OutEdge{Module: mid, Data: outData})

		if t.DependsOn == "" {
			inData := dagspec.DataID(t.ID + "_in")
			dataSpecs[inData] = dagspec.DataNodeSpec{Name: t.ID + "_in", Type: value.String(), PortBindings: map[dagspec.ModuleID]string{mid: inPort}}
			inEdges = append(inEdges, dagspec.InEdge{Data: inData, Module: mid})
			continue
		}
		upstreamData := dagspec.DataID(t.DependsOn + "_out")
		if spec, ok := dataSpecs[upstreamData]; ok {
			spec.PortBindings[mid] = inPort
		}
		inEdges = append(inEdges, dagspec.InEdge{Data: upstreamData, Module: mid})
	}

	outputData := dagspec.DataID(req.Output + "_out")
	spec, err := dagspec.Build(dagspec.Metadata{Name: req.Name}, moduleSpecs, dataSpecs, inEdges, outEdges,
		[]string{"result"}, map[string]dagspec.DataID{"result": outputData})
	if err != nil {
		return nil, err
	}
	return &compiledWorkflow{spec: spec, modules: mods}, nil
}

func uppercase(ctx context.Context, inputs map[string]value.Value) (map[string]value.Value, error) {
	in := inputs["in"].StringVal
	out := make([]byte, len(in))
	for i := 0; i < len(in); i++ {
		c := in[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return map[string]value.Value{"out": value.Str(string(out))}, nil
}

type workflowStore struct {
	mu  sync.RWMutex
	wfs map[string]*compiledWorkflow
}

func newWorkflowStore() *workflowStore { return &workflowStore{wfs: make(map[string]*compiledWorkflow)} }

func (s *workflowStore) put(name string, wf *compiledWorkflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wfs[name] = wf
}

func (s *workflowStore) get(name string) (*compiledWorkflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.wfs[name]
	return wf, ok
}

type executionStore struct {
	mu    sync.Mutex
	execs map[string]*runtime.CancellableExecution
}

func newExecutionStore() *executionStore {
	return &executionStore{execs: make(map[string]*runtime.CancellableExecution)}
}

func (s *executionStore) put(ce *runtime.CancellableExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs[ce.ID] = ce
}

func (s *executionStore) get(id string) (*runtime.CancellableExecution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ce, ok := s.execs[id]
	return ce, ok
}

func main() {
	service := "constellationd"
	logging.Init(service)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace := otelinit.InitTracer(ctx, service)
	shutdownMetrics, _ := otelinit.InitMetrics(ctx, service)

	engine := constellation.New(constellation.Config{})
	workflows := newWorkflowStore()
	executions := newExecutionStore()

	cronRunner := cron.New()
	cronRunner.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/dag", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req workflowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		wf, err := compile(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		workflows.put(req.Name, wf)
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("/v1/run", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Workflow string            `json:"workflow"`
			Inputs   map[string]string `json:"inputs"`
			Async    bool              `json:"async"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		wf, ok := workflows.get(req.Workflow)
		if !ok {
			http.NotFound(w, r)
			return
		}
		inputs := make(map[string]value.Value, len(req.Inputs))
		for k, v := range req.Inputs {
			inputs[k] = value.Str(v)
		}

		if req.Async {
			ce, err := engine.RunCancellable(r.Context(), wf.spec, inputs, wf.modules)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			executions.put(ce)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"execution_id": ce.ID})
			return
		}

		ctxRun, cancelRun := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancelRun()
		rs, err := engine.Execute(ctxRun, wf.spec, inputs, wf.modules)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(renderRunState(rs))
	})

	mux.HandleFunc("/v1/schedule", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Workflow string `json:"workflow"`
			CronExpr string `json:"cron_expr"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if _, ok := workflows.get(req.Workflow); !ok {
			http.Error(w, "workflow not found", http.StatusNotFound)
			return
		}
		entryID, err := cronRunner.AddFunc(req.CronExpr, func() {
			wf, ok := workflows.get(req.Workflow)
			if !ok {
				return
			}
			ctxRun, cancelRun := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancelRun()
			if _, err := engine.Execute(ctxRun, wf.spec, nil, wf.modules); err != nil {
				slog.Warn("scheduled run failed", "workflow", req.Workflow, "error", err)
			}
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"entry_id": int(entryID)})
	})

	mux.HandleFunc("/v1/cancel/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/v1/cancel/"):]
		ce, ok := executions.get(id)
		if !ok {
			http.NotFound(w, r)
			return
		}
		ce.Cancel()
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	slog.Info("constellationd started")
	<-ctx.Done()
	slog.Info("shutdown initiated")

	cronRunner.Stop()
	ctxSd, cancelSd := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelSd()
	engine.Shutdown(ctxSd, 5*time.Second)
	srv.Shutdown(ctxSd)
	otelinit.Flush(ctxSd, shutdownTrace)
	shutdownMetrics(ctxSd)
	slog.Info("shutdown complete")
}

func renderValue(v value.Value) any {
	switch v.Kind {
	case value.KindString:
		return v.StringVal
	case value.KindInt:
		return v.IntVal
	case value.KindFloat:
		return v.FloatVal
	case value.KindBool:
		return v.BoolVal
	default:
		return fmt.Sprintf("%+v", v)
	}
}

// renderRunState projects a RunState into the demo's JSON response shape:
// every computed data cell, every module's terminal status, and the run's
// latency once it has one.
func renderRunState(rs *runtime.RunState) map[string]any {
	data := make(map[string]any, len(rs.Data))
	for id, v := range rs.Data {
		data[string(id)] = renderValue(v)
	}
	statuses := make(map[string]string, len(rs.ModuleStatus))
	for id, st := range rs.ModuleStatus {
		statuses[string(id)] = st.Kind.String()
	}
	out := map[string]any{"data": data, "module_status": statuses}
	if rs.Latency != nil {
		out["latency_ms"] = rs.Latency.Milliseconds()
	}
	return out
}
