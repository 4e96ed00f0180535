package logging

import (
	"time"
)

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Domain field helpers

func Component(name string) Field {
	return String("component", name)
}

func Operation(op string) Field {
	return String("operation", op)
}

// Cluster identifies a cluster by name, e.g. "He2V5"
func Cluster(name string) Field {
	return String("cluster", name)
}

func ClusterID(id int) Field {
	return Int("cluster_id", id)
}

// GridPoint is the global index of a grid point
func GridPoint(xi int) Field {
	return Int("xi", xi)
}

// Temperature in kelvin
func Temperature(t float64) Field {
	return Float64("temperature", t)
}

func DOF(n int) Field {
	return Int("dof", n)
}

// Rank is the partition index in a multi-partition run
func Rank(r int) Field {
	return Int("rank", r)
}

func RunID(id string) Field {
	return String("run_id", id)
}

func Step(n int) Field {
	return Int("step", n)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}
