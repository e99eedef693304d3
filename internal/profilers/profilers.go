// Package profilers implement helper functions to set up profiling of the selfplay program.
//
// Call AddFlags to install the profiler flags, then Setup and a deferred OnQuit.
//
// It only supports debugging, and otherwise has no functionality for the training.
package profilers

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
)

var (
	flagProfiler   int
	flagCPUProfile string
	profilerAddr   string

	// globalCtx is set on the call to Setup.
	globalCtx context.Context
)

// AddFlags registers -prof and -cpu_profile in fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&flagProfiler, "prof", -1, "If set, runs the profile at the given port.")
	fs.StringVar(&flagCPUProfile, "cpu_profile", "", "write cpu profile to `file`")
}

// Setup starts the HTTP (flag -prof) and CPU profilers (flag -cpu_profile), if they were configured.
// You should follow with a deferred call to OnQuit.
func Setup(ctx context.Context) error {
	globalCtx = ctx
	if flagProfiler >= 0 {
		setupHTTPProfiler()
	}
	if flagCPUProfile != "" {
		return createCPUProfile()
	}
	return nil
}

// OnQuit should be called before the exit of the main() function, typically this is setup as a deferred call
// just after Setup.
func OnQuit() {
	if flagCPUProfile != "" {
		pprof.StopCPUProfile()
	}
	if flagProfiler < 0 {
		return
	}
	// Don't freeze on panic.
	if err := recover(); err != nil {
		panic(err)
	}
	httpProfilerOnQuit()
}

// createCPUProfile creates the file pointed by -cpu_profile and starts the CPU profiling there.
func createCPUProfile() error {
	f, err := os.Create(flagCPUProfile)
	if err != nil {
		return errors.Wrapf(err, "could not create CPU profile %q", flagCPUProfile)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		return errors.Wrap(err, "could not start CPU profile")
	}
	return nil
}

// setupHTTPProfiler starts the profiler if it was enabled by the -prof flag.
func setupHTTPProfiler() {
	profilerAddr = fmt.Sprintf("localhost:%d", flagProfiler)
	fmt.Printf("Starting profiler on %s/debug/pprof\n", profilerAddr)
	fmt.Printf("- You can access it with: $ go tool pprof %s/debug/pprof/heap\n", profilerAddr)
	fmt.Printf("- Program will be kept alive on end, you will have to interrupt it (Ctrl+C) to exit\n")
	go func() {
		klog.Fatal(http.ListenAndServe(profilerAddr, nil))
	}()
}

// httpProfilerOnQuit keeps the program alive until interrupted, so the profile can still be read.
func httpProfilerOnQuit() {
	if globalCtx.Err() != nil {
		// Already interrupted.
		return
	}

	// Garbage collect, to see if there is anything leaking.
	for range 10 {
		runtime.GC()
	}
	fmt.Printf("- Program finished: kept alive with profiler opened at %s/debug/pprof\n", profilerAddr)
	fmt.Printf("- Interrupt (Ctrl+C) to exit\n")
	<-globalCtx.Done()
	fmt.Printf("... exiting ...\n")
}
