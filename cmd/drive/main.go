// Command drive runs the scan loop for one motorized actuator driven from
// momentary buttons.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/w1xm/scan_drive/actuator"
	"github.com/w1xm/scan_drive/candrive"
	"github.com/w1xm/scan_drive/control"
	"github.com/w1xm/scan_drive/drive"
	"github.com/w1xm/scan_drive/easycomm"
	"github.com/w1xm/scan_drive/easycomm/simulator"
	"github.com/w1xm/scan_drive/panel"
	"github.com/w1xm/scan_drive/scan"
	"github.com/w1xm/scan_drive/telemetry"
	"golang.org/x/sync/errgroup"
)

var (
	variant         = flag.String("variant", "A", "deployment variant (A or B)")
	cycle           = flag.Duration("cycle", 0, "override the variant's scan cycle")
	maxSpeed        = flag.Float64("max_speed", 0, "override max speed, deg/s")
	accelRate       = flag.Float64("accel", 0, "override acceleration rate, deg/s/s")
	decelRate       = flag.Float64("decel", 0, "override deceleration rate, deg/s/s")
	brakeMultiplier = flag.Float64("brake_multiplier", 0, "override braking rate as a multiple of the deceleration rate")
	minSpeed        = flag.Float64("min_speed", -1, "override the dead-zone profile offset, deg/s (0 disables)")
	manualGC        = flag.Bool("manual_gc", false, "only collect garbage at the end of each scan")

	addr      = flag.String("addr", "127.0.0.1:8502", "address for the web remote")
	staticDir = flag.String("static_dir", "", "directory containing static files for the web remote")

	simulate       = flag.Bool("simulate", false, "drive a simulated EasyComm axis")
	easycommTCP    = flag.String("easycomm_tcp", "", "EasyComm rotator TCP address")
	easycommSerial = flag.String("easycomm_serial", "", "EasyComm rotator serial port")
	easycommBaud   = flag.Int("easycomm_baud", 9600, "EasyComm rotator baud rate")
	canIface       = flag.String("can_iface", "", "SocketCAN interface for the motor controller")
	canID          = flag.Uint("can_id", uint(candrive.DefaultID), "CAN frame ID for speed commands")

	panelSerial   = flag.String("panel_serial", "", "button panel serial port name")
	panelBaud     = flag.Int("panel_baud", 19200, "button panel baud rate")
	panelAddr     = flag.String("panel_addr", "", "button panel Modbus TCP address")
	panelURL      = flag.String("panel_url", "", "button panel modbus_server URL")
	panelPassword = flag.String("panel_password", "", "password for the modbus_server bridge")

	influxBucket = flag.String("influx_bucket", "", "InfluxDB bucket for per-scan telemetry (INFLUX_SERVER and INFLUX_TOKEN from the environment)")
	influxOrg    = flag.String("influx_org", "w1xm", "InfluxDB organization")
	mqttBroker   = flag.String("mqtt_broker", "", "MQTT broker URL for per-scan telemetry")
	mqttTopic    = flag.String("mqtt_topic", "scan_drive/cycle", "MQTT topic for per-scan telemetry")

	verbose = flag.Bool("verbose", false, "log every actuator exchange")
)

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

// deployment returns the selected variant with any flag overrides applied.
func deployment() (drive.Deployment, error) {
	d, err := drive.LookupDeployment(*variant)
	if err != nil {
		return d, err
	}
	if *cycle > 0 {
		d.Cycle = *cycle
	}
	if *maxSpeed > 0 {
		d.Config.MaxSpeed = *maxSpeed
	}
	if *accelRate > 0 {
		d.Config.AccelerationRate = *accelRate
	}
	if *decelRate > 0 {
		ratio := d.Config.BrakingRate / d.Config.DecelerationRate
		d.Config.DecelerationRate = *decelRate
		d.Config.BrakingRate = *decelRate * ratio
	}
	if *brakeMultiplier > 0 {
		d.Config.BrakingRate = d.Config.DecelerationRate * *brakeMultiplier
	}
	if *minSpeed >= 0 {
		d.Config.MinSpeed = *minSpeed
		d.Config.Profiled = *minSpeed > 0
	}
	return d, d.Config.Validate()
}

func run(ctx context.Context) error {
	d, err := deployment()
	if err != nil {
		return err
	}
	log.Printf("deployment %s: cycle %v, %+v", d.Name, d.Cycle, d.Config)

	// Devices outlive the loop so they can still be stopped after a fault.
	devCtx, devCancel := context.WithCancel(context.Background())
	defer devCancel()

	g, ctx := errgroup.WithContext(ctx)
	server := NewServer(d.Name)

	var (
		actuators  actuator.Multi
		indicators actuator.Indicators
		inputs     = []control.Inputs{server}
		observers  = []control.Observer{server}
	)

	if *simulate {
		sim, conn := simulator.New()
		sim.SetVerbose(*verbose)
		g.Go(func() error {
			if err := sim.Run(devCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("simulator: %v", err)
			}
			return nil
		})
		r := easycomm.NewRotator(conn, server.actuatorCallback)
		go func() {
			if err := r.Run(devCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("simulated rotator: %v", err)
			}
		}()
		actuators = append(actuators, r)
	}
	if *easycommTCP != "" {
		r, err := easycomm.ConnectTCP(devCtx, *easycommTCP, server.actuatorCallback)
		if err != nil {
			return err
		}
		actuators = append(actuators, r)
	}
	if *easycommSerial != "" {
		r, err := easycomm.ConnectSerial(devCtx, *easycommSerial, *easycommBaud, server.actuatorCallback)
		if err != nil {
			return err
		}
		actuators = append(actuators, r)
	}
	if *canIface != "" {
		w, err := candrive.Dial(devCtx, *canIface, uint32(*canID))
		if err != nil {
			return err
		}
		defer w.Close()
		actuators = append(actuators, w)
	}
	if len(actuators) == 0 {
		return errors.New("no actuator configured; use -simulate, -easycomm_tcp, -easycomm_serial or -can_iface")
	}

	if *panelSerial != "" || *panelAddr != "" || *panelURL != "" {
		p, err := panel.Connect(devCtx, panel.Options{
			Port:     *panelSerial,
			BaudRate: *panelBaud,
			Address:  *panelAddr,
			URL:      *panelURL,
			Password: *panelPassword,
		}, server.panelCallback)
		if err != nil {
			return fmt.Errorf("connecting panel: %w", err)
		}
		inputs = append(inputs, p)
		indicators = append(indicators, p)
	}

	if *influxBucket != "" {
		influxServer := os.Getenv("INFLUX_SERVER")
		if influxServer == "" {
			influxServer = "http://localhost:9999"
		}
		i := telemetry.NewInflux(influxServer, os.Getenv("INFLUX_TOKEN"), *influxOrg, *influxBucket, map[string]string{"deployment": d.Name})
		defer i.Close()
		observers = append(observers, i)
	}
	if *mqttBroker != "" {
		m, err := telemetry.DialMQTT(devCtx, *mqttBroker, *mqttTopic)
		if err != nil {
			return fmt.Errorf("connecting mqtt: %w", err)
		}
		defer m.Close()
		observers = append(observers, m)
	}

	var opts []scan.Option
	if *manualGC {
		opts = append(opts, scan.WithManualGC())
	}
	timer, err := scan.New(d.Cycle, opts...)
	if err != nil {
		return err
	}
	defer timer.Close()
	machine, err := drive.New(d.Config)
	if err != nil {
		return err
	}

	outputs := []control.Output{control.Speed(actuators)}
	if len(indicators) > 0 {
		outputs = append(outputs, control.Light(indicators))
	}
	loop := &control.Loop{
		Timer:     timer,
		Machine:   machine,
		Inputs:    control.Merge(inputs...),
		Outputs:   outputs,
		Observers: observers,
	}

	srv := &http.Server{
		Handler:      server.Router(*staticDir),
		Addr:         *addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	g.Go(func() error {
		log.Printf("Listening on %v", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := loop.Run(ctx)
		if !errors.Is(err, context.Canceled) {
			log.Printf("control fault: %v", err)
		}
		if serr := actuators.Stop(); serr != nil {
			log.Printf("stopping actuator: %v", serr)
		}
		log.Printf("stopped after %d scans, %d overruns", loop.Seq(), timer.Overruns())
		devCancel()
		return err
	})
	return g.Wait()
}
