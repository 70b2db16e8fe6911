// Package config loads uidl.json, the configuration of a UIDL server.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "address": ":8080",
//	    "cookieName": "UIDLSESSIONID",
//	    "maxSessions": 0,
//	    "shutdownTimeout": "30s"
//	  },
//	  "deployment": {
//	    "productionMode": false,
//	    "syncIdCheck": true,
//	    "xsrfProtection": true,
//	    "pushMode": "automatic",
//	    "sessionTimeout": "30m"
//	  },
//	  "websocket": {
//	    "readTimeout": "60s",
//	    "pingInterval": "30s"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv, err := server.New(cfg.ServerConfig(), factory)
package config
