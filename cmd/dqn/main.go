// Command dqn trains a deep Q-network on a small built-in game of catch.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"time"

	deeprl "github.com/codeaudit/deep-rl-ale"
	"github.com/codeaudit/deep-rl-ale/checkpoint"
	"github.com/codeaudit/deep-rl-ale/qnet"
	"github.com/codeaudit/deep-rl-ale/render/gif"
	"github.com/codeaudit/deep-rl-ale/stats"
	"github.com/samuelfneumann/progressbar"
	"golang.org/x/exp/rand"
)

var (
	confFile   = flag.String("config", "", "JSON encoded network config. The built-in catch network if empty")
	name       = flag.String("name", "catch", "run name")
	modelDir   = flag.String("models", checkpoint.DefaultRoot, "directory to keep run checkpoints in")
	load       = flag.Bool("load", false, "resume from the latest checkpoint of the run")
	steps      = flag.Int("steps", 20000, "environment steps")
	trainEvery = flag.Int("train", 4, "environment steps between training steps")
	syncEvery  = flag.Int("sync", 500, "training steps between target network updates")
	saveEvery  = flag.Int("save", 2000, "training steps between checkpoints, 0 to only save at the end")
	memory     = flag.Int64("memory", 0, "memory budget of the network in bytes, 0 for unbounded")
	seed       = flag.Uint64("seed", 1337, "random seed")
	dotFile    = flag.String("dot", "", "write the architecture as graphviz to this file")
	gifFile    = flag.String("gif", "", "write a greedy episode as a GIF to this file")
	statsFile  = flag.String("stats", "", "write losses and Q values as CSV to this file")
	progress   = flag.Bool("progress", false, "show a progress bar of the environment steps")
)

// catchConf is a network for 24x24 screens and the three actions of catch.
func catchConf() qnet.Config {
	conf := qnet.DefaultConf(3)
	conf.ConvKernelShapes = [][4]int{{4, 4, 4, 16}, {3, 3, 16, 32}}
	conf.ConvStrides = [][4]int{{1, 2, 2, 1}, {1, 1, 1, 1}}
	conf.DenseLayerShapes = [][2]int{{2592, 128}}
	conf.ScreenHeight = 24
	conf.ScreenWidth = 24
	return conf
}

func main() {
	flag.Parse()
	logger := log.New(os.Stderr, "", log.Ltime)

	nnConf := catchConf()
	if *confFile != "" {
		var err error
		if nnConf, err = qnet.LoadConfig(*confFile); err != nil {
			logger.Fatalf("%+v", err)
		}
	}
	nnConf.Name = *name
	nnConf.LoadModel = *load
	nnConf.MemoryBudget = *memory
	nnConf.Seed = int64(*seed)
	if nnConf.NumActions != 3 {
		logger.Fatalf("catch has 3 actions, the network has %d", nnConf.NumActions)
	}

	if *dotFile != "" {
		dot, err := nnConf.ToDot()
		if err != nil {
			logger.Fatalf("%+v", err)
		}
		if err = ioutil.WriteFile(*dotFile, []byte(dot), 0644); err != nil {
			logger.Fatal(err)
		}
	}

	conf := deeprl.Config{
		NNConf:               nnConf,
		ReplayCapacity:       50000,
		ReplayStart:          1000,
		TargetUpdateInterval: *syncEvery,
		CheckpointInterval:   *saveEvery,
		Seed:                 *seed,
	}
	mem := deeprl.NewReplayMemory(nnConf, conf.ReplayCapacity, conf.Seed)
	rec := stats.New()
	learner, err := deeprl.NewLearner(conf, mem, logger, qnet.WithModelDir(*modelDir), qnet.WithStats(rec))
	if err != nil {
		logger.Fatalf("%+v", err)
	}
	defer learner.Close()

	if err = run(learner, mem, logger); err != nil {
		logger.Fatalf("%+v", err)
	}
	path, err := learner.Save()
	if err != nil {
		logger.Fatalf("%+v", err)
	}
	logger.Printf("saved %v. %v", path, rec.Summary(1000))

	if *statsFile != "" {
		if err = rec.Dump(*statsFile); err != nil {
			logger.Fatalf("%+v", err)
		}
	}
	if *gifFile != "" {
		if err = record(learner, *gifFile); err != nil {
			logger.Fatalf("%+v", err)
		}
	}
}

// run collects experience with uniformly random actions and trains on it.
func run(l *deeprl.Learner, mem *deeprl.ReplayMemory, logger *log.Logger) error {
	nn := l.NNConf
	game := newCatch(nn.ScreenHeight, nn.ScreenWidth, *seed)
	fs := deeprl.NewFrameStack(nn.ScreenHeight, nn.ScreenWidth, nn.ObservationLength)
	rng := rand.New(rand.NewSource(*seed + 1))

	if err := fs.Push(game.screen()); err != nil {
		return err
	}
	var bar *progressbar.ProgressBar
	if *progress {
		bar = progressbar.New(50, *steps, time.Second, false)
		bar.Display()
		defer bar.Close()
	}

	var episodes int
	var total float32
	for i := 0; i < *steps; i++ {
		if bar != nil {
			bar.Increment()
		}
		obs, err := fs.Observation()
		if err != nil {
			return err
		}
		action := rng.Intn(nn.NumActions)
		reward, done := game.step(action)
		if done {
			episodes++
			total += reward
		}
		if err = fs.Push(game.screen()); err != nil {
			return err
		}
		next, err := fs.Observation()
		if err != nil {
			return err
		}
		if err = mem.Add(deeprl.Transition{Observation: obs, Action: action, Reward: reward, NextObservation: next}); err != nil {
			return err
		}
		if done {
			game.reset()
			fs.Reset()
			if err = fs.Push(game.screen()); err != nil {
				return err
			}
		}

		if i%*trainEvery == 0 && l.Ready() {
			if err = l.Learn(1); err != nil {
				return err
			}
			if s := l.Steps(); s%1000 == 0 && episodes > 0 {
				logger.Printf("step %d: loss %v, %d episodes, mean reward %.3f", s, l.Loss(), episodes, total/float32(episodes))
			}
		}
	}
	return nil
}

// record plays one greedy episode and writes it as a GIF.
func record(l *deeprl.Learner, filename string) error {
	nn := l.NNConf
	game := newCatch(nn.ScreenHeight, nn.ScreenWidth, *seed+2)
	fs := deeprl.NewFrameStack(nn.ScreenHeight, nn.ScreenWidth, nn.ObservationLength)

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	var enc deeprl.OutputEncoder = gif.NewEncoder(f, 4)

	if err = fs.Push(game.screen()); err != nil {
		return err
	}
	for t := 0; ; t++ {
		obs, err := fs.Tensor()
		if err != nil {
			return err
		}
		q, err := l.Infer(obs)
		if err != nil {
			return err
		}
		qs := q.Data().([]float32)
		actions, err := l.GreedyActions(obs)
		if err != nil {
			return err
		}
		if err = enc.Encode(obs, qs, fmt.Sprintf("t %d", t)); err != nil {
			return err
		}

		reward, done := game.step(actions[0])
		if err = fs.Push(game.screen()); err != nil {
			return err
		}
		if done {
			obs, err = fs.Tensor()
			if err != nil {
				return err
			}
			if err = enc.Encode(obs, nil, fmt.Sprintf("reward %v", reward)); err != nil {
				return err
			}
			break
		}
	}
	return enc.Flush()
}
