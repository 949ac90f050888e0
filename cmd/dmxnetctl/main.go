// Command dmxnetctl is a flag-driven CLI that wires the controller,
// the Art-Net and sACN senders/receivers, and an optional RDMnet client
// into a general-purpose DMX/RDM control surface, driven by a TOML
// patch-target config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gopatchy/dmxnet/artnet"
	"github.com/gopatchy/dmxnet/config"
	"github.com/gopatchy/dmxnet/controller"
	"github.com/gopatchy/dmxnet/rdmnet"
	"github.com/gopatchy/dmxnet/sacn"
)

type app struct {
	cfg *config.Config

	artnetCtl *controller.Controller
	sacnCtl   *controller.Controller

	artSender *artnet.Sender
	sacnSender *sacn.Sender

	artReceiver *artnet.Receiver
	sacnReceiver *sacn.Receiver

	debug bool

	statsMu   sync.Mutex
	inCount   map[string]uint64
	outCount  map[string]uint64
}

func main() {
	configPath := flag.String("config", "config.toml", "path to config file")
	artnetListen := flag.String("artnet-listen", ":6454", "artnet listen address (empty to disable)")
	sacnInterface := flag.String("sacn-interface", "", "network interface for sACN multicast")
	debug := flag.Bool("debug", false, "log incoming/outgoing dmx packets")
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[config] error: %v", err)
	}
	log.Printf("[config] loaded targets=%d controller.protocol=%s", len(cfg.Targets), cfg.Controller.Protocol)

	a := &app{
		cfg:      cfg,
		debug:    *debug,
		inCount:  map[string]uint64{},
		outCount: map[string]uint64{},
	}

	artSender, err := artnet.NewSender("", "")
	if err != nil {
		log.Fatalf("[artnet] sender error: %v", err)
	}
	defer artSender.Close()
	a.artSender = artSender

	sacnSender, err := sacn.NewSender("dmxnetctl", *sacnInterface)
	if err != nil {
		log.Fatalf("[sacn] sender error: %v", err)
	}
	defer sacnSender.Close()
	a.sacnSender = sacnSender

	artnetCtl, err := controller.New(controller.Config{
		Protocol:     "artnet",
		ArtnetSender: artSender,
		ArtSync:      cfg.Controller.ArtSync,
	})
	if err != nil {
		log.Fatalf("[controller] artnet init error: %v", err)
	}
	a.artnetCtl = artnetCtl

	sacnCtl, err := controller.New(controller.Config{
		Protocol:   "sacn",
		SacnSender: sacnSender,
	})
	if err != nil {
		log.Fatalf("[controller] sacn init error: %v", err)
	}
	a.sacnCtl = sacnCtl

	for i, t := range cfg.Targets {
		dst := a.controllerFor(t.To.Universe.Protocol)
		if _, err := dst.AddUniverse(t.To.Universe.Number); err != nil {
			log.Fatalf("[config] target %d: %v", i, err)
		}
		log.Printf("[config]   target %s -> %s", t.From, t.To)
	}

	if *artnetListen != "" {
		addr, err := parseListenAddr(*artnetListen, artnet.Port)
		if err != nil {
			log.Fatalf("[artnet] listen address error: %v", err)
		}
		receiver, err := artnet.NewReceiver(addr, a)
		if err != nil {
			log.Fatalf("[artnet] receiver error: %v", err)
		}
		a.artReceiver = receiver
		receiver.Start()
		log.Printf("[artnet] listening addr=%s", addr)
	}

	if univs := sacnSourceUniverses(cfg); len(univs) > 0 {
		receiver, err := sacn.NewReceiver(univs, *sacnInterface, a.handleSACN)
		if err != nil {
			log.Fatalf("[sacn] receiver error: %v", err)
		}
		a.sacnReceiver = receiver
		receiver.Start()
		log.Printf("[sacn] listening universes=%v", univs)
	}

	var rdmnetClient *rdmnet.Client
	if cfg.Rdmnet.Host != "" {
		rdmnetClient = startRdmnetClient(cfg)
		defer rdmnetClient.Disconnect()
	}

	stop := make(chan struct{})
	go a.statsLoop(stop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("[main] shutting down")
	close(stop)
	if a.artReceiver != nil {
		a.artReceiver.Stop()
	}
	if a.sacnReceiver != nil {
		a.sacnReceiver.Stop()
	}
}

func (a *app) controllerFor(p config.Protocol) *controller.Controller {
	if p == config.ProtocolSACN {
		return a.sacnCtl
	}
	return a.artnetCtl
}

// HandleDMX implements artnet.PacketHandler.
func (a *app) HandleDMX(src *net.UDPAddr, pkt *artnet.DMXPacket) {
	if a.debug {
		log.Printf("[<-artnet] src=%s universe=%d seq=%d len=%d", src.IP, pkt.Universe, pkt.Sequence, pkt.Length)
	}
	a.bump(a.inCount, fmt.Sprintf("artnet:%d", pkt.Universe))
	a.route(config.Universe{Protocol: config.ProtocolArtNet, Number: pkt.Universe}, pkt.Data)
}

// HandlePoll implements artnet.PacketHandler; this CLI does not run
// node discovery, so polls are ignored.
func (a *app) HandlePoll(src *net.UDPAddr, pkt *artnet.PollPacket) {}

// HandlePollReply implements artnet.PacketHandler.
func (a *app) HandlePollReply(src *net.UDPAddr, pkt *artnet.PollReplyPacket) {}

// HandleRaw implements artnet.PacketHandler for opcodes without a
// dedicated handler here (ArtSync, ArtTimeCode, RDM/TOD traffic, ...).
func (a *app) HandleRaw(src *net.UDPAddr, opcode uint16, data []byte) {}

func (a *app) handleSACN(pkt *sacn.Packet) {
	if a.debug {
		log.Printf("[<-sacn] universe=%d seq=%d", pkt.Universe, pkt.Sequence)
	}
	a.bump(a.inCount, fmt.Sprintf("sacn:%d", pkt.Universe))
	data := pkt.Data
	a.route(config.Universe{Protocol: config.ProtocolSACN, Number: int(pkt.Universe)}, data[:])
}

// route applies every patch target whose From universe matches src,
// copying the configured channel range into the destination universe,
// then flushes the destination controller.
func (a *app) route(src config.Universe, data []byte) {
	for _, t := range a.cfg.Targets {
		if t.From.Universe != src {
			continue
		}
		dst := a.controllerFor(t.To.Universe.Protocol)
		u, err := dst.AddUniverse(t.To.Universe.Number)
		if err != nil {
			log.Printf("[route] %v", err)
			continue
		}
		n := t.From.ChannelEnd - t.From.ChannelStart + 1
		start := t.From.ChannelStart - 1
		end := start + n
		if end > len(data) {
			end = len(data)
		}
		if start >= end {
			continue
		}
		for i := start; i < end; i++ {
			ch := t.To.ChannelStart + (i - start)
			if err := u.SetChannel(ch, float64(data[i])); err != nil {
				log.Printf("[route] %v", err)
			}
		}
		a.bump(a.outCount, t.To.Universe.String())
	}
	if err := a.artnetCtl.FlushAll(false); err != nil {
		log.Printf("[->artnet] flush error: %v", err)
	}
	if err := a.sacnCtl.FlushAll(false); err != nil {
		log.Printf("[->sacn] flush error: %v", err)
	}
}

func (a *app) bump(m map[string]uint64, key string) {
	a.statsMu.Lock()
	m[key]++
	a.statsMu.Unlock()
}

func (a *app) statsLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.printStats()
		}
	}
}

func (a *app) printStats() {
	a.statsMu.Lock()
	in := a.inCount
	out := a.outCount
	a.inCount = map[string]uint64{}
	a.outCount = map[string]uint64{}
	a.statsMu.Unlock()

	if len(in) > 0 {
		log.Printf("[stats] input by universe (last 10s):")
		for k, v := range in {
			log.Printf("[stats]   %s: %d packets", k, v)
		}
	}
	if len(out) > 0 {
		log.Printf("[stats] output by universe (last 10s):")
		for k, v := range out {
			log.Printf("[stats]   %s: %d packets", k, v)
		}
	}
}

func sacnSourceUniverses(cfg *config.Config) []uint16 {
	seen := map[uint16]bool{}
	var out []uint16
	for _, t := range cfg.Targets {
		if t.From.Universe.Protocol == config.ProtocolSACN {
			u := uint16(t.From.Universe.Number)
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out
}

func parseListenAddr(s string, defaultPort int) (*net.UDPAddr, error) {
	var host string
	port := defaultPort

	if strings.Contains(s, ":") {
		h, p, err := net.SplitHostPort(s)
		if err != nil {
			return nil, err
		}
		host = h
		if p != "" {
			port, err = strconv.Atoi(p)
			if err != nil {
				return nil, err
			}
		}
	} else {
		host = s
	}

	ip := net.IPv4zero
	if host != "" {
		ip = net.ParseIP(host)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address: %s", host)
		}
	}

	return &net.UDPAddr{IP: ip, Port: port}, nil
}

func startRdmnetClient(cfg *config.Config) *rdmnet.Client {
	client := rdmnet.NewClient(rdmnet.Config{
		Host:                    cfg.Rdmnet.Host,
		Port:                    cfg.Rdmnet.Port,
		TLS:                     cfg.Rdmnet.TLS,
		RequireTLSAuthorization: cfg.Rdmnet.TLSStrict,
		HeartbeatInterval:       time.Duration(cfg.Rdmnet.HeartbeatIntervalMs) * time.Millisecond,
		AutoReconnect:           true,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Rdmnet.RequestTimeoutMs)*time.Millisecond)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		log.Printf("[rdmnet] connect error: %v", err)
		return client
	}

	role := rdmnet.RoleController
	if strings.EqualFold(cfg.Rdmnet.Role, "device") {
		role = rdmnet.RoleDevice
	}
	endpointRole := role
	if strings.EqualFold(cfg.Rdmnet.EndpointRole, "device") {
		endpointRole = rdmnet.RoleDevice
	} else if strings.EqualFold(cfg.Rdmnet.EndpointRole, "controller") {
		endpointRole = rdmnet.RoleController
	}

	profiles := make([]uint16, len(cfg.Rdmnet.Profiles))
	for i, p := range cfg.Rdmnet.Profiles {
		profiles[i] = uint16(p)
	}

	sessCtx, sessCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Rdmnet.RequestTimeoutMs)*time.Millisecond)
	defer sessCancel()

	err := client.StartBrokerSession(sessCtx, rdmnet.BrokerSessionOptions{
		Scope:        cfg.Rdmnet.Scope,
		Role:         role,
		AutoBind:     true,
		EndpointID:   uint16(cfg.Rdmnet.EndpointID),
		EndpointRole: endpointRole,
		Profiles:     profiles,
	})
	if err != nil {
		log.Printf("[rdmnet] broker session error: %v", err)
		return client
	}

	log.Printf("[rdmnet] bound scope=%s state=%s", cfg.Rdmnet.Scope, client.State())
	return client
}
