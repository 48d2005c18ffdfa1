package channel

import (
	"sync"
	"time"

	"github.com/flowmesh/reactor/buffer"
)

// Config holds the tunables spec section 4.6 lists for a channel:
// socket options, buffer watermarks, and the allocators used for
// incoming and outgoing bytes. Fields are private with getter/setter
// pairs, mirroring Netty's ChannelConfig, because options like
// AutoRead are read from one goroutine (the loop) while set from
// another (application code calling Config().SetAutoRead).
type Config struct {
	mu sync.RWMutex

	soRcvBuf    int
	soSndBuf    int
	soKeepAlive bool
	tcpNoDelay  bool
	soReuseAddr bool
	soReusePort bool
	soBacklog   int

	connectTimeout time.Duration
	writeSpinCount int
	autoRead       bool

	writeBufferHighWaterMark int
	writeBufferLowWaterMark  int

	allocator     buffer.Allocator
	recvAllocator RecvByteBufAllocator
}

// NewConfig returns a Config with the teacher-style sane defaults:
// autoRead on, a 16-iteration write spin count, and a pooled
// allocator for outbound buffers.
func NewConfig() *Config {
	return &Config{
		soBacklog:                128,
		connectTimeout:           10 * time.Second,
		writeSpinCount:           16,
		autoRead:                 true,
		writeBufferHighWaterMark: 64 * 1024,
		writeBufferLowWaterMark:  32 * 1024,
		allocator:                buffer.NewPooledAllocator(),
		recvAllocator:            NewAdaptiveRecvByteBufAllocator(),
	}
}

func (c *Config) SoRcvBuf() int { c.mu.RLock(); defer c.mu.RUnlock(); return c.soRcvBuf }
func (c *Config) SetSoRcvBuf(n int) *Config {
	c.mu.Lock()
	c.soRcvBuf = n
	c.mu.Unlock()
	return c
}

func (c *Config) SoSndBuf() int { c.mu.RLock(); defer c.mu.RUnlock(); return c.soSndBuf }
func (c *Config) SetSoSndBuf(n int) *Config {
	c.mu.Lock()
	c.soSndBuf = n
	c.mu.Unlock()
	return c
}

func (c *Config) SoKeepAlive() bool { c.mu.RLock(); defer c.mu.RUnlock(); return c.soKeepAlive }
func (c *Config) SetSoKeepAlive(v bool) *Config {
	c.mu.Lock()
	c.soKeepAlive = v
	c.mu.Unlock()
	return c
}

func (c *Config) TCPNoDelay() bool { c.mu.RLock(); defer c.mu.RUnlock(); return c.tcpNoDelay }
func (c *Config) SetTCPNoDelay(v bool) *Config {
	c.mu.Lock()
	c.tcpNoDelay = v
	c.mu.Unlock()
	return c
}

func (c *Config) SoReuseAddr() bool { c.mu.RLock(); defer c.mu.RUnlock(); return c.soReuseAddr }
func (c *Config) SetSoReuseAddr(v bool) *Config {
	c.mu.Lock()
	c.soReuseAddr = v
	c.mu.Unlock()
	return c
}

func (c *Config) SoReusePort() bool { c.mu.RLock(); defer c.mu.RUnlock(); return c.soReusePort }
func (c *Config) SetSoReusePort(v bool) *Config {
	c.mu.Lock()
	c.soReusePort = v
	c.mu.Unlock()
	return c
}

func (c *Config) SoBacklog() int { c.mu.RLock(); defer c.mu.RUnlock(); return c.soBacklog }
func (c *Config) SetSoBacklog(n int) *Config {
	c.mu.Lock()
	c.soBacklog = n
	c.mu.Unlock()
	return c
}

func (c *Config) ConnectTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectTimeout
}
func (c *Config) SetConnectTimeout(d time.Duration) *Config {
	c.mu.Lock()
	c.connectTimeout = d
	c.mu.Unlock()
	return c
}

func (c *Config) WriteSpinCount() int { c.mu.RLock(); defer c.mu.RUnlock(); return c.writeSpinCount }
func (c *Config) SetWriteSpinCount(n int) *Config {
	c.mu.Lock()
	c.writeSpinCount = n
	c.mu.Unlock()
	return c
}

func (c *Config) AutoRead() bool { c.mu.RLock(); defer c.mu.RUnlock(); return c.autoRead }
func (c *Config) SetAutoRead(v bool) *Config {
	c.mu.Lock()
	c.autoRead = v
	c.mu.Unlock()
	return c
}

func (c *Config) WriteBufferHighWaterMark() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writeBufferHighWaterMark
}
func (c *Config) SetWriteBufferHighWaterMark(n int) *Config {
	c.mu.Lock()
	c.writeBufferHighWaterMark = n
	c.mu.Unlock()
	return c
}

func (c *Config) WriteBufferLowWaterMark() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writeBufferLowWaterMark
}
func (c *Config) SetWriteBufferLowWaterMark(n int) *Config {
	c.mu.Lock()
	c.writeBufferLowWaterMark = n
	c.mu.Unlock()
	return c
}

func (c *Config) Allocator() buffer.Allocator { c.mu.RLock(); defer c.mu.RUnlock(); return c.allocator }
func (c *Config) SetAllocator(a buffer.Allocator) *Config {
	c.mu.Lock()
	c.allocator = a
	c.mu.Unlock()
	return c
}

func (c *Config) RecvByteBufAllocator() RecvByteBufAllocator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recvAllocator
}
func (c *Config) SetRecvByteBufAllocator(a RecvByteBufAllocator) *Config {
	c.mu.Lock()
	c.recvAllocator = a
	c.mu.Unlock()
	return c
}
