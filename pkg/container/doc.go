// Package container manages the lifetime of one externally launched,
// container-backed resource.
//
// A Handle is produced by Start once the launcher reports success and returns a
// non-empty container id. Stop issues exactly one teardown per handle no matter
// how often it is called, and teardown failures are logged rather than
// returned so they never replace the result of the run.
//
// Run wraps the whole acquire → use → release sequence:
//
//	err := container.Run(ctx, container.NewCLILauncher(), spec,
//	    func(ctx context.Context, h *container.Handle) error {
//	        // poll the endpoint and drive the browser
//	        return nil
//	    })
//
// Two launchers are provided: CLILauncher shells out to the docker binary and
// EngineLauncher talks to the Docker Engine API.
package container
