/*
Package httpserver runs the heirloom HTTP API.

A Server mounts any number of RouteRegistrar handlers on a chi router together
with the operational endpoints:

  - GET /livez - liveness check
  - GET /readyz - readiness check, 503 while draining
  - GET /drain - mark the server as not ready
  - GET /undrain - mark the server as ready

pprof is mounted under /debug when EnablePprof is set, and metrics are served
on a separate listener when a MetricsServer is passed.

	srv := httpserver.New(cfg, metricsSrv,
		escalationhandler.NewHandler(escalations, custody, log),
		sharehandler.NewHandler(shares, log))
	srv.RunInBackground()
	defer srv.Shutdown()

Shutdown drains first, waits DrainDuration for load balancers to notice, and
then shuts both listeners down within GracefulShutdownDuration.
*/
package httpserver
