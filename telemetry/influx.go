package telemetry

import (
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api/write"
	"github.com/w1xm/scan_drive/control"
)

const measurement = "drive.cycle"

type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Influx writes a point per scan cycle. Writes are batched in the
// background so Observe never blocks the scan loop.
type Influx struct {
	client influxdb2.Client
	write  pointWriter
	tags   map[string]string
	now    func() time.Time
}

func NewInflux(server, token, org, bucket string, tags map[string]string) *Influx {
	client := influxdb2.NewClient(server, token)
	// Get non-blocking write client
	writeApi := client.WriteApi(org, bucket)
	// Get errors channel
	errorsCh := writeApi.Errors()
	go func() {
		for err := range errorsCh {
			log.Printf("influx write error: %v", err)
		}
	}()
	return &Influx{
		client: client,
		write:  writeApi,
		tags:   tags,
		now:    time.Now,
	}
}

func (i *Influx) Observe(c control.Cycle) {
	s := NewSample(c, i.now())
	p := influxdb2.NewPoint(measurement, i.tags, s.fields(), s.Time)
	// write asynchronously
	i.write.WritePoint(p)
}

func (i *Influx) Close() {
	i.write.Flush()
	if i.client != nil {
		i.client.Close()
	}
}
