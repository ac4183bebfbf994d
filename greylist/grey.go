// Copyright (c) 2020 aerth <aerth@riseup.net>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// package greylist implements a basic whitelisting/blacklisting middleware
//
// It reads 2 files (whitelist file, blacklist file), one IP per line, and
// can periodically refresh them. Temporary bans are added with Blacklist, or
// after MaxStrikes calls to Strike for the same address.
//
// Clients are keyed by the host part of r.RemoteAddr. Behind a reverse proxy,
// run a real-ip middleware (chi's middleware.RealIP) before Protect.
package greylist

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultTemporaryBlacklistTime = time.Hour

// MaxStrikes is how many strikes earn a temporary ban.
const MaxStrikes = 3

// List is a greylist instance
type List struct {
	whitelistFilename, blacklistFilename string
	whitelist, blacklist                 map[string]struct{}
	temporaryBlacklist                   map[string]time.Time
	strikes                              map[string]int
	mu                                   sync.RWMutex
	lastTime                             time.Time
	refreshRate                          time.Duration
	nextRefresh                          time.Time
	allMethods                           bool
	temporaryBlacklistTime               time.Duration
	log                                  *zap.SugaredLogger
	now                                  func() time.Time
}

// New accepts whitelist filename, blacklist filename, and a refreshrate duration.
// Missing or empty files are not used, and read errors are logged at debug level.
// refreshRate can be 0, in which case no automatic refreshing is done (see RefreshLists).
//
// By default, only non-GET requests are protected and temporary bans are one hour.
func New(whitelistFilename, blacklistFilename string, refreshRate time.Duration, lg *zap.SugaredLogger) *List {
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}
	l := &List{
		whitelistFilename:      whitelistFilename,
		blacklistFilename:      blacklistFilename,
		whitelist:              make(map[string]struct{}),
		blacklist:              make(map[string]struct{}),
		temporaryBlacklist:     make(map[string]time.Time),
		strikes:                make(map[string]int),
		temporaryBlacklistTime: DefaultTemporaryBlacklistTime,
		refreshRate:            refreshRate,
		log:                    lg.Named("greylist"),
		now:                    time.Now,
	}
	l.RefreshLists()
	return l
}

// Protect wraps h. It has the func(http.Handler) http.Handler shape so it
// can be passed to router.Use.
func (l *List) Protect(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// quick short circuit for safe requests
		if !l.allMethods && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
			h.ServeHTTP(w, r)
			return
		}
		l.maybeRefresh()

		ip := ClientIP(r)
		switch until, state := l.check(ip); state {
		case whitelisted:
			l.log.Debugw("allowing whitelisted ip", "ip", ip)
		case blacklisted:
			l.log.Infow("blocking blacklisted ip", "ip", ip)
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		case banned:
			left := until.Sub(l.now()).Truncate(time.Second)
			l.log.Infow("blocking temporarily banned ip", "ip", ip, "remaining", left)
			http.Error(w, fmt.Sprintf("You have been blocked for %s", left), http.StatusForbidden)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// SetAllMethods blocks all requests from blacklisted IPs, not only non-GET.
func (l *List) SetAllMethods(b bool) {
	l.allMethods = b
}

// SetTemporaryBlacklistTime sets the duration that offenders will be blacklisted for
func (l *List) SetTemporaryBlacklistTime(d time.Duration) {
	l.temporaryBlacklistTime = d
}

// Blacklist adds a temporary ban for the request's client.
func (l *List) Blacklist(r *http.Request) {
	l.ban(ClientIP(r))
}

func (l *List) ban(ip string) {
	l.mu.Lock()
	l.temporaryBlacklist[ip] = l.now().Add(l.temporaryBlacklistTime)
	delete(l.strikes, ip)
	l.mu.Unlock()
	l.log.Warnw("temporary ban", "ip", ip, "duration", l.temporaryBlacklistTime)
}

// Strike records one bad attempt (failed login, spam) from the request's
// client and bans it on the MaxStrikes'th strike. It reports whether the
// client is now banned. Counters start over after a ban.
func (l *List) Strike(r *http.Request) bool {
	ip := ClientIP(r)
	l.mu.Lock()
	l.strikes[ip]++
	n := l.strikes[ip]
	l.mu.Unlock()
	l.log.Infow("strike", "ip", ip, "count", n)
	if n >= MaxStrikes {
		l.ban(ip)
		return true
	}
	return false
}

// Forgive clears the strikes and temporary ban of ip.
func (l *List) Forgive(ip string) {
	l.mu.Lock()
	delete(l.strikes, ip)
	delete(l.temporaryBlacklist, ip)
	l.mu.Unlock()
}

// Banned reports whether the request's client is blacklisted or temporarily banned.
func (l *List) Banned(r *http.Request) bool {
	_, state := l.check(ClientIP(r))
	return state == blacklisted || state == banned
}

type state int

const (
	unknown state = iota
	whitelisted
	blacklisted
	banned
)

func (l *List) check(ip string) (time.Time, state) {
	l.mu.RLock()
	_, white := l.whitelist[ip]
	_, black := l.blacklist[ip]
	until, temp := l.temporaryBlacklist[ip]
	l.mu.RUnlock()
	switch {
	case white:
		return time.Time{}, whitelisted
	case black:
		return time.Time{}, blacklisted
	case temp && until.After(l.now()):
		return until, banned
	case temp:
		l.log.Infow("removing expired temporary ban", "ip", ip)
		l.mu.Lock()
		delete(l.temporaryBlacklist, ip)
		l.mu.Unlock()
	}
	return time.Time{}, unknown
}

func (l *List) maybeRefresh() {
	if l.refreshRate <= 0 {
		return
	}
	l.mu.Lock()
	due := !l.now().Before(l.nextRefresh)
	if due {
		l.nextRefresh = l.now().Add(l.refreshRate)
	}
	l.mu.Unlock()
	if due {
		go l.RefreshLists()
	}
}

// RefreshLists re-reads the whitelist and blacklist files when they changed
// since the last refresh. Removed IPs are dropped. Unreadable files keep the
// current list.
func (l *List) RefreshLists() {
	t1 := l.now()
	l.mu.RLock()
	since := l.lastTime
	l.mu.RUnlock()

	white, wok := readList(l.whitelistFilename, since, l.log)
	black, bok := readList(l.blacklistFilename, since, l.log)

	l.mu.Lock()
	if wok {
		l.whitelist = white
	}
	if bok {
		l.blacklist = black
	}
	nw, nb := len(l.whitelist), len(l.blacklist)
	l.lastTime = t1
	if l.nextRefresh.IsZero() && l.refreshRate > 0 {
		l.nextRefresh = t1.Add(l.refreshRate)
	}
	l.mu.Unlock()

	if wok || bok {
		l.log.Infow("refreshed lists", "took", time.Since(t1), "whitelisted", nw, "blacklisted", nb, "next", l.refreshRate)
	}
}

// readList returns the set of non-empty lines of filename, or false when the
// file is missing, unreadable or unchanged since t.
func readList(filename string, since time.Time, lg *zap.SugaredLogger) (map[string]struct{}, bool) {
	if filename == "" {
		return nil, false
	}
	info, err := os.Stat(filename)
	if err != nil {
		lg.Debugw("list not readable", "file", filename, "error", err)
		return nil, false
	}
	if !info.ModTime().After(since) {
		return nil, false
	}
	b, err := os.ReadFile(filename)
	if err != nil {
		lg.Debugw("list not readable", "file", filename, "error", err)
		return nil, false
	}
	set := make(map[string]struct{})
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		set[string(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		lg.Warnw("error scanning list", "file", filename, "error", err)
	}
	return set, true
}

// ClientIP is the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
