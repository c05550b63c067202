// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lineproto

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nilsager/gpibctl/bus"
	"github.com/nilsager/gpibctl/bus/pinio"
	"github.com/nilsager/gpibctl/config"
)

func init() {
	register("addr", ModeBoth, cmdAddr)
	register("auto", ModeController, cmdAuto)
	register("clr", ModeController, cmdClr)
	register("dcl", ModeController, cmdDcl)
	register("default", ModeBoth, cmdDefault)
	register("eoi", ModeBoth, cmdEoi)
	register("eor", ModeBoth, cmdEor)
	register("eos", ModeBoth, cmdEos)
	register("eot_char", ModeBoth, cmdEotChar)
	register("eot_enable", ModeBoth, cmdEotEnable)
	register("help", ModeBoth, cmdHelp)
	register("ifc", ModeController, cmdIfc)
	register("id", ModeBoth, cmdID)
	register("idn", ModeBoth, cmdID)
	register("llo", ModeController, cmdLlo)
	register("loc", ModeController, cmdLoc)
	register("lon", ModeDevice, cmdLon)
	register("macro", ModeController, cmdMacro)
	register("mla", ModeController, cmdMla)
	register("mta", ModeController, cmdMta)
	register("msa", ModeController, cmdMsa)
	register("unl", ModeController, cmdUnlRaw)
	register("unt", ModeController, cmdUntRaw)
	register("mode", ModeBoth, cmdMode)
	register("ppoll", ModeController, cmdPpoll)
	register("prom", ModeDevice, cmdProm)
	register("read", ModeController, cmdRead)
	register("read_tmo_ms", ModeController, cmdReadTmo)
	register("ren", ModeController, cmdRen)
	register("repeat", ModeController, cmdRepeat)
	register("rst", ModeBoth, cmdRst)
	register("savecfg", ModeBoth, cmdSavecfg)
	register("setvstr", ModeBoth, cmdSetvstr)
	register("spoll", ModeController, cmdSpoll)
	register("allspoll", ModeController, cmdAllspoll)
	register("srq", ModeController, cmdSrq)
	register("srqauto", ModeController, cmdSrqauto)
	register("stat", ModeDevice, cmdStat)
	register("status", ModeDevice, cmdStat)
	register("ton", ModeDevice, cmdTon)
	register("trg", ModeController, cmdTrg)
	register("ver", ModeBoth, cmdVer)
	register("verbose", ModeBoth, cmdVerbose)
	register("xdiag", ModeBoth, cmdXdiag)
}

func cmdAddr(ctx *Context, params string) {
	params = strings.TrimSpace(params)
	if params == "" {
		fmt.Fprintf(ctx.Sink, "%d\n", ctx.Cfg.PrimaryAddress)
		return
	}
	// Unlike the numeric-range commands, a bad address is a bad command.
	n, err := strconv.Atoi(params)
	if err != nil || n < config.MinAddress || n > config.MaxAddress {
		ctx.Errorf("Unrecognized command")
		return
	}
	if ctx.Controller && byte(n) == ctx.Cfg.ControllerAddress {
		ctx.Errorf("Unrecognized command")
		return
	}
	ctx.Cfg.PrimaryAddress = byte(n)
	if !ctx.Controller {
		// In device role the primary address is our own bus address.
		ctx.Engine.OwnAddress = byte(n)
	}
}

func cmdAuto(ctx *Context, params string) {
	params = strings.TrimSpace(params)
	if params == "" {
		fmt.Fprintf(ctx.Sink, "%d\n", int(ctx.Auto))
		return
	}
	n, ok := notInRange(ctx, params, 0, 3)
	if !ok {
		return
	}
	ctx.Auto = AutoMode(n)
}

func cmdClr(ctx *Context, _ string) {
	if err := ctx.Engine.SelectedDeviceClear(ctx.Cfg.PrimaryAddress); err != nil {
		ctx.Errorf("%s", err)
	}
}

func cmdDcl(ctx *Context, _ string) {
	if err := ctx.Engine.DeviceClearAll(); err != nil {
		ctx.Errorf("%s", err)
	}
}

func cmdDefault(ctx *Context, _ string) {
	*ctx.Cfg = config.Default()
	ctx.buf.SetIDNEnabled(ctx.Cfg.IDNMode != config.IDNDisabled)
	ctx.Engine.RTMOms = ctx.Cfg.ReadTimeoutMs
}

func cmdEoi(ctx *Context, params string) {
	boolField(ctx, params, &ctx.Cfg.EOIOnSend)
}

func cmdEor(ctx *Context, params string) {
	params = strings.TrimSpace(params)
	if params == "" {
		fmt.Fprintf(ctx.Sink, "%d\n", int(ctx.Cfg.EOR))
		return
	}
	n, ok := notInRange(ctx, params, 0, 7)
	if !ok {
		return
	}
	ctx.Cfg.EOR = config.EORTerminator(n)
}

func cmdEos(ctx *Context, params string) {
	params = strings.TrimSpace(params)
	if params == "" {
		fmt.Fprintf(ctx.Sink, "%d\n", int(ctx.Cfg.EOS))
		return
	}
	n, ok := notInRange(ctx, params, 0, 3)
	if !ok {
		return
	}
	ctx.Cfg.EOS = config.EOSTerminator(n)
}

func cmdEotChar(ctx *Context, params string) {
	params = strings.TrimSpace(params)
	if params == "" {
		fmt.Fprintf(ctx.Sink, "%d\n", ctx.Cfg.EOTChar)
		return
	}
	n, ok := notInRange(ctx, params, 0, config.MaxEOTChar)
	if !ok {
		return
	}
	ctx.Cfg.EOTChar = byte(n)
}

func cmdEotEnable(ctx *Context, params string) {
	boolField(ctx, params, &ctx.Cfg.EOTEnabled)
}

func cmdHelp(ctx *Context, params string) {
	params = strings.TrimSpace(params)
	if params == "" {
		fmt.Fprint(ctx.Sink, "commands: ")
		names := make([]string, 0, len(table))
		for _, c := range table {
			names = append(names, c.token)
		}
		fmt.Fprintln(ctx.Sink, strings.Join(names, " "))
		return
	}
	for _, c := range table {
		if c.token == strings.ToLower(params) {
			fmt.Fprintf(ctx.Sink, "%s\n", c.token)
			return
		}
	}
	ctx.Errorf("Unrecognized command")
}

func cmdIfc(ctx *Context, _ string) {
	ctx.Engine.IFCPulse()
}

func cmdID(ctx *Context, params string) {
	params = strings.TrimSpace(params)
	if params == "" {
		fmt.Fprintf(ctx.Sink, "%d\n", int(ctx.Cfg.IDNMode))
		return
	}
	if n, err := strconv.Atoi(params); err == nil {
		if n < 0 || n > 2 {
			ctx.Errorf("Valid range is between %d and %d", 0, 2)
			return
		}
		ctx.Cfg.IDNMode = config.IDNMode(n)
		ctx.buf.SetIDNEnabled(ctx.Cfg.IDNMode != config.IDNDisabled)
		return
	}
	field, value, hasValue := strings.Cut(params, " ")
	value = strings.TrimSpace(value)
	hasValue = hasValue && value != ""
	switch strings.ToLower(field) {
	case "verstr", "fwver":
		if hasValue {
			ctx.Cfg.VersionString = value
			return
		}
		fmt.Fprintln(ctx.Sink, ctx.Cfg.VersionString)
	case "name":
		if hasValue {
			ctx.Cfg.ShortName = value
			return
		}
		fmt.Fprintln(ctx.Sink, ctx.Cfg.ShortName)
	case "serial":
		if hasValue {
			ctx.Cfg.SerialNumber = value
			return
		}
		fmt.Fprintln(ctx.Sink, ctx.Cfg.SerialNumber)
	default:
		ctx.Errorf("Unrecognized command")
	}
}

func cmdLlo(ctx *Context, params string) {
	var err error
	if strings.TrimSpace(params) == "all" {
		// Universal: every listener locks out, no addressing needed.
		err = ctx.Engine.LocalLockout()
	} else {
		err = ctx.Engine.LocalLockoutOne(ctx.Cfg.PrimaryAddress)
	}
	if err != nil {
		ctx.Errorf("%s", err)
	}
}

func cmdLoc(ctx *Context, params string) {
	if strings.TrimSpace(params) == "all" {
		// Dropping REN returns every device to local at once.
		ctx.Engine.SetREN(false)
		settle()
		ctx.Engine.SetREN(true)
		return
	}
	if err := ctx.Engine.GoToLocal(ctx.Cfg.PrimaryAddress); err != nil {
		ctx.Errorf("%s", err)
	}
}

func cmdLon(ctx *Context, params string) {
	boolField(ctx, params, &ctx.LonMode)
}

func cmdMacro(ctx *Context, params string) {
	n, ok := notInRange(ctx, params, 0, 9)
	if !ok {
		return
	}
	text := ctx.Macros[n]
	if text == "" {
		return
	}
	ctx.sendAndMaybeReceive([]byte(text))
}

func cmdMla(ctx *Context, params string) {
	addr, ok := notInRange(ctx, params, config.MinAddress, config.MaxAddress)
	if !ok {
		return
	}
	if err := ctx.Engine.SendRaw(bus.LAD(byte(addr))); err != nil {
		ctx.Errorf("%s", err)
	}
}

func cmdMta(ctx *Context, params string) {
	addr, ok := notInRange(ctx, params, config.MinAddress, config.MaxAddress)
	if !ok {
		return
	}
	if err := ctx.Engine.SendRaw(bus.TAD(byte(addr))); err != nil {
		ctx.Errorf("%s", err)
	}
}

func cmdMsa(ctx *Context, params string) {
	addr, ok := notInRange(ctx, params, 0, 30)
	if !ok {
		return
	}
	if err := ctx.Engine.SendRaw(bus.MSA(byte(addr))); err != nil {
		ctx.Errorf("%s", err)
	}
}

func cmdUnlRaw(ctx *Context, _ string) {
	if err := ctx.Engine.SendRaw(bus.CmdUNL); err != nil {
		ctx.Errorf("%s", err)
	}
}

func cmdUntRaw(ctx *Context, _ string) {
	if err := ctx.Engine.SendRaw(bus.CmdUNT); err != nil {
		ctx.Errorf("%s", err)
	}
}

func cmdMode(ctx *Context, params string) {
	params = strings.TrimSpace(params)
	if params == "" {
		fmt.Fprintf(ctx.Sink, "%d\n", boolToInt(ctx.Controller))
		return
	}
	n, ok := notInRange(ctx, params, 0, 1)
	if !ok {
		return
	}
	wantController := n == 1
	if wantController == ctx.Controller {
		return
	}
	// Stop the bus, let the lines settle, then bring the engine up in the
	// other role. The ISR records ATN and SRQ edges in either role and the
	// bridge loop keys off Engine.Role, so edge handling follows
	// automatically.
	ctx.Engine.Stop()
	settle()
	if wantController {
		ctx.Cfg.Mode = config.ModeController
		ctx.Engine.SwitchRole(bus.Controller, ctx.Cfg.ControllerAddress)
	} else {
		ctx.Cfg.Mode = config.ModeDevice
		ctx.Engine.SwitchRole(bus.Device, ctx.Cfg.PrimaryAddress)
	}
	ctx.Controller = wantController
}

// settle gives released lines time to float back high before the new role
// starts driving them.
func settle() { time.Sleep(200 * time.Microsecond) }

func cmdPpoll(ctx *Context, _ string) {
	b, err := ctx.Engine.ParallelPoll()
	if err != nil {
		ctx.Errorf("%s", err)
		return
	}
	fmt.Fprintf(ctx.Sink, "%d\n", b)
}

func cmdProm(ctx *Context, params string) {
	if ctx.Attn == nil {
		ctx.Errorf("Unrecognized command")
		return
	}
	boolField(ctx, params, &ctx.Attn.Promiscuous)
}

func cmdRead(ctx *Context, params string) {
	params = strings.TrimSpace(params)
	var data []byte
	var err error
	switch {
	case params == "":
		data, err = ctx.Receive(wantEOR, 0)
	case strings.EqualFold(params, "eoi"):
		data, err = ctx.Receive(wantEOI, 0)
	default:
		n, ok := notInRange(ctx, params, 0, 255)
		if !ok {
			return
		}
		data, err = ctx.Receive(wantEndByte, byte(n))
	}
	if err != nil {
		ctx.Errorf("%s", err)
		return
	}
	ctx.Sink.Write(data)
	if ctx.Cfg.EOTEnabled {
		ctx.Sink.Write([]byte{ctx.Cfg.EOTChar})
	}
}

func cmdReadTmo(ctx *Context, params string) {
	params = strings.TrimSpace(params)
	if params == "" {
		fmt.Fprintf(ctx.Sink, "%d\n", ctx.Engine.RTMOms)
		return
	}
	n, ok := notInRange(ctx, params, config.MinReadTimeoutMs, config.MaxReadTimeoutMs)
	if !ok {
		return
	}
	ctx.Engine.RTMOms = n
}

func cmdRen(ctx *Context, params string) {
	b, ok := boolParam(ctx, params)
	if !ok {
		return
	}
	ctx.Engine.SetREN(b)
}

func cmdRepeat(ctx *Context, params string) {
	fields := strings.SplitN(strings.TrimSpace(params), " ", 3)
	if len(fields) < 3 {
		ctx.Errorf("Valid range is between %d and %d", 0, 255)
		return
	}
	n, err1 := strconv.Atoi(fields[0])
	delay, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || n < 0 {
		ctx.Errorf("Valid range is between %d and %d", 0, 255)
		return
	}
	text := fields[2]
	for i := 0; i < n; i++ {
		ctx.sendAndMaybeReceive([]byte(text))
		if ctx.tranBrk {
			return
		}
		if i != n-1 {
			sleepMs(delay)
		}
	}
}

// cmdRst is the soft reset: stop the bus, reload the persisted
// configuration, and come back up in the configured role, the closest a
// host process gets to the firmware's watchdog reset.
func cmdRst(ctx *Context, _ string) {
	ctx.Engine.Stop()
	settle()
	if ctx.Store != nil {
		cfg, err := config.Load(ctx.Store)
		if err != nil {
			ctx.Log.Printf("rst: %v, using defaults", err)
		}
		*ctx.Cfg = cfg
	}
	ctx.Auto = AutoManual
	ctx.tranBrk = false
	ctx.pending = nil
	ctx.buf = Buffer{}
	ctx.buf.SetIDNEnabled(ctx.Cfg.IDNMode != config.IDNDisabled)
	ctx.Controller = ctx.Cfg.Mode == config.ModeController
	if ctx.Controller {
		ctx.Engine.SwitchRole(bus.Controller, ctx.Cfg.ControllerAddress)
	} else {
		ctx.Engine.SwitchRole(bus.Device, ctx.Cfg.PrimaryAddress)
	}
	ctx.Engine.RTMOms = ctx.Cfg.ReadTimeoutMs
}

func cmdSavecfg(ctx *Context, _ string) {
	if ctx.Store == nil {
		return
	}
	if err := config.Save(ctx.Store, *ctx.Cfg); err != nil {
		ctx.Errorf("%s", err)
	}
}

func cmdSetvstr(ctx *Context, params string) {
	ctx.Cfg.VersionString = strings.TrimSpace(params)
}

func cmdSpoll(ctx *Context, params string) {
	fields := strings.Fields(params)
	if len(fields) == 1 && strings.EqualFold(fields[0], "all") {
		cmdAllspoll(ctx, "")
		return
	}
	if len(fields) == 0 {
		r, err := ctx.Engine.SerialPollOne(ctx.Cfg.PrimaryAddress)
		if err != nil {
			ctx.Errorf("%s", err)
			return
		}
		fmt.Fprintf(ctx.Sink, "%d\n", r.Status)
		return
	}
	addrs := make([]byte, 0, len(fields))
	for _, f := range fields {
		n, ok := notInRange(ctx, f, config.MinAddress, config.MaxAddress)
		if !ok {
			return
		}
		addrs = append(addrs, byte(n))
	}
	results, err := ctx.Engine.SerialPollMany(addrs)
	if err != nil {
		ctx.Errorf("%s", err)
		return
	}
	for _, r := range results {
		fmt.Fprintln(ctx.Sink, r.String())
	}
}

func cmdAllspoll(ctx *Context, _ string) {
	results, err := ctx.Engine.SerialPollAll()
	if err != nil {
		ctx.Errorf("%s", err)
		return
	}
	for _, r := range results {
		fmt.Fprintln(ctx.Sink, r.String())
	}
}

func cmdSrq(ctx *Context, _ string) {
	fmt.Fprintf(ctx.Sink, "%d\n", boolToInt(ctx.Engine.ReadSRQ() == pinio.Low))
}

func cmdSrqauto(ctx *Context, params string) {
	boolField(ctx, params, &ctx.SRQAuto)
}

func cmdStat(ctx *Context, params string) {
	params = strings.TrimSpace(params)
	if params == "" {
		fmt.Fprintf(ctx.Sink, "%d\n", ctx.Cfg.StatusByte)
		return
	}
	n, ok := notInRange(ctx, params, 0, 255)
	if !ok {
		return
	}
	ctx.Cfg.StatusByte = byte(n)
	if ctx.Cfg.RQS() {
		ctx.Engine.AssertSRQLine()
	} else {
		ctx.Engine.ClearSRQLine()
	}
}

func cmdTon(ctx *Context, params string) {
	params = strings.TrimSpace(params)
	if params == "" {
		fmt.Fprintf(ctx.Sink, "%d\n", ctx.TonMode)
		return
	}
	n, ok := notInRange(ctx, params, 0, 2)
	if !ok {
		return
	}
	ctx.TonMode = n
}

func cmdTrg(ctx *Context, params string) {
	fields := strings.Fields(params)
	if len(fields) == 0 {
		if err := ctx.Engine.GroupExecuteTrigger(ctx.Cfg.PrimaryAddress); err != nil {
			ctx.Errorf("%s", err)
		}
		return
	}
	if len(fields) > 15 {
		ctx.Errorf("Valid range is between %d and %d", 1, 15)
		return
	}
	for _, f := range fields {
		n, ok := notInRange(ctx, f, config.MinAddress, config.MaxAddress)
		if !ok {
			return
		}
		if err := ctx.Engine.GroupExecuteTrigger(byte(n)); err != nil {
			ctx.Errorf("%s", err)
			return
		}
	}
}

func cmdVer(ctx *Context, params string) {
	if strings.TrimSpace(params) == "real" {
		fmt.Fprintln(ctx.Sink, "gpibctl")
		return
	}
	fmt.Fprintln(ctx.Sink, ctx.Cfg.VersionString)
}

func cmdVerbose(ctx *Context, _ string) {
	ctx.Verbose = !ctx.Verbose
}

func cmdXdiag(ctx *Context, params string) {
	fields := strings.Fields(params)
	if len(fields) != 2 {
		ctx.Errorf("Unrecognized command")
		return
	}
	which, ok1 := notInRange(ctx, fields[0], 0, 1)
	value, ok2 := notInRange(ctx, fields[1], 0, 255)
	if !ok1 || !ok2 {
		return
	}
	if which == 0 {
		ctx.Engine.Adapter.WriteDataBus(byte(value))
	} else {
		ctx.Engine.Adapter.SetControl(pinio.Mask(value), pinio.AllControlLines, pinio.ModeLevel)
	}
}

// boolField implements the common `token` / `token 0|1` query-or-set shape
// shared by the boolean commands.
func boolField(ctx *Context, params string, field *bool) {
	if strings.TrimSpace(params) == "" {
		fmt.Fprintf(ctx.Sink, "%d\n", boolToInt(*field))
		return
	}
	b, ok := boolParam(ctx, params)
	if !ok {
		return
	}
	*field = b
}

// boolParam parses a 0/1 parameter. ok is false both when params was empty
// (caller should treat as a query) and when it failed range-checking
// (notInRange already emitted the error line).
func boolParam(ctx *Context, params string) (bool, bool) {
	params = strings.TrimSpace(params)
	if params == "" {
		return false, false
	}
	n, ok := notInRange(ctx, params, 0, 1)
	if !ok {
		return false, false
	}
	return n == 1, true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
