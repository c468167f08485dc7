// Package telemetry installs OpenTelemetry tracer and meter providers that
// export over OTLP.
//
// Components instrument themselves through the global otel API
// (otel.Tracer, otel.Meter). Until New is called with an enabled Config
// those calls hit the no-op providers, so tests and the default
// configuration export nothing.
//
//	tel, err := telemetry.New(ctx, &cfg.Telemetry, logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
package telemetry
