// Package trdp implements the core of a Train Real-Time Data Protocol
// (IEC 61375-2-3) communication stack: Process Data (PD) cyclic
// publish/subscribe and Message Data (MD) request/reply/notify/confirm,
// the socket pool that multiplexes both over UDP and TCP, and the
// addressing/topology rules shared by every higher layer.
package trdp
