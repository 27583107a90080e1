package main

import (
	"context"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/drone/drone-testopia/plugin"
)

func main() {
	var args plugin.Args
	if err := envconfig.Process("", &args); err != nil {
		logrus.Fatalln("failed to parse plugin parameters:", err)
	}

	switch args.Level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	if err := plugin.ValidateInputs(args); err != nil {
		logrus.Fatalln(err)
	}

	result, err := plugin.Exec(context.Background(), args)
	if err != nil {
		logrus.Fatalln(err)
	}
	switch result {
	case plugin.ResultFailure:
		logrus.Error("Build marked as FAILURE")
		os.Exit(1)
	case plugin.ResultUnstable:
		logrus.Warn("Build marked as UNSTABLE")
	default:
		logrus.Info("Build finished with SUCCESS")
	}
}
