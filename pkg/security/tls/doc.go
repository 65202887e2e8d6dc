/*
Package tls serves the sidecar listener over TLS.

	tlsConfig, err := tls.ServerConfig(ctx, &cfg.Proxy.TLS, logger)
	if err != nil {
		return err
	}
	if tlsConfig != nil {
		ln = cryptotls.NewListener(ln, tlsConfig)
	}

The certificate pair is polled every reload_interval and swapped in when
either file changes, so renewed certificates apply to new connections
without a restart. Setting client_ca_file requires callers to present a
certificate signed by one of its CAs.
*/
package tls
