// Package driver runs the compilation pipeline end to end: manifest to
// graph, graph to IR, IR to an LLVM module on disk. It owns stage timing and
// the artifact cache; the stages themselves live in their own packages.
package driver

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jygan/glow/internal/alloc"
	"github.com/jygan/glow/internal/backend/llvm"
	"github.com/jygan/glow/internal/diag"
	"github.com/jygan/glow/internal/graph"
	"github.com/jygan/glow/internal/ir"
	"github.com/jygan/glow/internal/model"
	"github.com/jygan/glow/internal/observ"
)

// Options select what to compile and which artifacts to produce.
type Options struct {
	ManifestPath string
	OutputDir    string

	// EmitDebugInfo adds debug metadata and the IR dump file to the output.
	EmitDebugInfo bool

	// NoCache forces a full compilation even when a cached artifact matches.
	NoCache bool

	// Reporter receives each non-fatal diagnostic as it is raised. Nil is
	// fine; the Result carries the collected diagnostics either way.
	Reporter diag.Reporter
}

// Result reports what a compilation produced.
type Result struct {
	ModulePath string // emitted .ll file
	IRDumpPath string // IR dump, empty unless debug info was requested
	FromCache  bool

	// Diagnostics holds the run's non-fatal findings in report order.
	Diagnostics []diag.Diagnostic

	Timings observ.Report
}

// Compile runs the full pipeline for one model.
func Compile(opts Options) (*Result, error) {
	timer := observ.NewTimer()
	res := &Result{}

	var diags diag.Bag
	report := func(d diag.Diagnostic) {
		diags.Report(d)
		if opts.Reporter != nil {
			opts.Reporter.Report(d)
		}
	}

	phase := timer.Begin("manifest")
	man, err := model.LoadManifest(opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	timer.End(phase, man.Name)

	phase = timer.Begin("weights")
	var bundle *model.Bundle
	if man.HasBundle() {
		bundle, err = model.LoadBundle(man)
		if err != nil {
			return nil, err
		}
	} else if len(man.Weights) > 0 {
		report(diag.Warning(diag.CodeWeights,
			fmt.Sprintf("no weights bundle at %s, compiling without weight data", man.BundlePath())))
	}
	timer.End(phase, "")

	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("driver: create output dir: %w", err)
	}

	key, keyed := cacheKey(opts, man)
	var cache *DiskCache
	if !opts.NoCache && keyed {
		cache, _ = OpenDiskCache(cacheApp)
		if cache != nil {
			var payload DiskPayload
			if ok, err := cache.Get(key, &payload); err == nil && ok {
				if r, err := restoreArtifacts(opts, man, &payload); err == nil {
					r.Diagnostics = diags.All()
					r.Timings = timer.Report()
					return r, nil
				}
				// A stale or unreadable entry falls through to a fresh build.
			}
		}
	}

	phase = timer.Begin("graph")
	g, err := graph.Build(man, bundle)
	if err != nil {
		return nil, err
	}
	timer.End(phase, fmt.Sprintf("%d nodes", len(g.Nodes)))

	phase = timer.Begin("lower")
	irmod, err := graph.Lower(g)
	if err != nil {
		return nil, err
	}
	timer.End(phase, fmt.Sprintf("%d instrs", len(irmod.Main.Instrs)))

	phase = timer.Begin("alloc")
	plan, err := alloc.Plan(irmod)
	if err != nil {
		return nil, err
	}
	timer.End(phase, fmt.Sprintf("activations %d B", plan.ActivationsSize))

	phase = timer.Begin("emit")
	em := llvm.NewEmitter(irmod, plan, llvm.Options{
		EmitDebugInfo: opts.EmitDebugInfo,
		OutputDir:     opts.OutputDir,
	})
	if _, err := em.Emit(); err != nil {
		return nil, err
	}
	llPath, err := em.WriteModule()
	if err != nil {
		return nil, err
	}
	timer.End(phase, "")

	res.ModulePath = llPath
	if opts.EmitDebugInfo {
		res.IRDumpPath = filepath.Join(opts.OutputDir, irmod.Main.Name+".glow")
	}

	if cache != nil {
		// Cache failures never fail the build.
		_ = storeArtifacts(cache, key, res)
	}

	res.Diagnostics = diags.All()
	res.Timings = timer.Report()
	return res, nil
}

// DumpIR runs the front half of the pipeline and returns the textual IR of
// the entry function, without emitting machine artifacts.
func DumpIR(manifestPath string) (string, error) {
	man, err := model.LoadManifest(manifestPath)
	if err != nil {
		return "", err
	}
	var bundle *model.Bundle
	if man.HasBundle() {
		bundle, err = model.LoadBundle(man)
		if err != nil {
			return "", err
		}
	}
	g, err := graph.Build(man, bundle)
	if err != nil {
		return "", err
	}
	irmod, err := graph.Lower(g)
	if err != nil {
		return "", err
	}
	return ir.DumpString(irmod.Main), nil
}

// cacheKey digests everything that determines the artifacts: the manifest
// bytes, the weight bundle bytes and the options that shape the output.
func cacheKey(opts Options, man *model.Manifest) (Digest, bool) {
	h := sha256.New()
	manBytes, err := os.ReadFile(opts.ManifestPath)
	if err != nil {
		return Digest{}, false
	}
	h.Write(manBytes)
	if man.HasBundle() {
		bundleBytes, err := os.ReadFile(man.BundlePath())
		if err != nil {
			return Digest{}, false
		}
		h.Write(bundleBytes)
	}
	fmt.Fprintf(h, "debug=%t", opts.EmitDebugInfo)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, true
}

func restoreArtifacts(opts Options, man *model.Manifest, payload *DiskPayload) (*Result, error) {
	res := &Result{FromCache: true}
	res.ModulePath = filepath.Join(opts.OutputDir, man.Name+".ll")
	if err := os.WriteFile(res.ModulePath, []byte(payload.ModuleText), 0o644); err != nil {
		return nil, err
	}
	if opts.EmitDebugInfo {
		if payload.IRDumpText == "" {
			return nil, fmt.Errorf("driver: cached entry has no IR dump")
		}
		res.IRDumpPath = filepath.Join(opts.OutputDir, man.Name+".glow")
		if err := os.WriteFile(res.IRDumpPath, []byte(payload.IRDumpText), 0o644); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func storeArtifacts(cache *DiskCache, key Digest, res *Result) error {
	payload := &DiskPayload{Schema: diskCacheSchemaVersion}
	moduleText, err := os.ReadFile(res.ModulePath)
	if err != nil {
		return err
	}
	payload.ModuleText = string(moduleText)
	if res.IRDumpPath != "" {
		dumpText, err := os.ReadFile(res.IRDumpPath)
		if err != nil {
			return err
		}
		payload.IRDumpText = string(dumpText)
	}
	return cache.Put(key, payload)
}
