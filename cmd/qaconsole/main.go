package main

import (
	"flag"
	"io/ioutil"
	"log"
	"os"
	"path"

	"github.com/hathorqa/qaconsole/src/console"
	"gopkg.in/yaml.v2"
)

func main() {
	pwd, _ := os.Getwd()
	fullPath := path.Join(pwd, "config.yaml")
	log.Printf("loading config @ `%s`", fullPath)
	rawCfg, err := ioutil.ReadFile(fullPath)
	if err != nil {
		log.Printf("config file not found: %s", err)
		os.Exit(1)
	}
	cfg := console.Config{}
	if err := yaml.Unmarshal(rawCfg, &cfg); err != nil {
		log.Printf("failed parsing config file: %s", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.ListenPort, "listen", cfg.ListenPort, "port to serve the qa console api on, default `:8090`")
	flag.StringVar(&cfg.DaemonAddress, "daemon", cfg.DaemonAddress, "address of the hathor wallet-headless daemon, default `http://localhost:8000`")
	flag.StringVar(&cfg.PromPort, "prom", cfg.PromPort, "address to serve prom stats, default `:2112`")
	flag.StringVar(&cfg.HealthCheckPort, "hcp", cfg.HealthCheckPort, `(rarely used) if defined will expose a health check on /readyz, default ""`)
	flag.StringVar(&cfg.PostgresConfig, "pg", cfg.PostgresConfig, `config string for the postgres connection, empty disables event archival"`)
	flag.StringVar(&cfg.RedisAddress, "redis", cfg.RedisAddress, `config string for the redis connection, empty keeps the address index in memory"`)
	flag.StringVar(&cfg.FundingWalletID, "funding", cfg.FundingWalletID, `wallet id to auto-start into the funding slot"`)
	flag.StringVar(&cfg.TestWalletID, "test", cfg.TestWalletID, `wallet id to auto-start into the test slot"`)
	flag.BoolVar(&cfg.Mock, "mock", cfg.Mock, "run against the in-process mock wallet daemon")

	flag.Parse()

	log.Println("----------------------------------")
	log.Printf("initializing qa console")
	log.Printf("\tapi:           %s", cfg.ListenPort)
	log.Printf("\tdaemon:        %s", cfg.DaemonAddress)
	log.Printf("\tnetwork:       %s", cfg.Network)
	log.Printf("\tprom:          %s", cfg.PromPort)
	log.Printf("\thealth check:  %s", cfg.HealthCheckPort)
	log.Printf("\tfunding:  	 %s", cfg.FundingWalletID)
	log.Printf("\ttest:  		 %s", cfg.TestWalletID)
	log.Printf("\tmock:  		 %t", cfg.Mock)
	log.Println("----------------------------------")

	if err := console.ListenAndServe(cfg); err != nil {
		log.Println(err)
	}
}
