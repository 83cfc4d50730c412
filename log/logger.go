// Copyright 2022-2026 The COC Authors
// This file is part of the COC library.
//
// The COC library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The COC library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the COC library. If not, see <http://www.gnu.org/licenses/>.

package log

import (
	"fmt"
	"sync"
)

// logger renders key/value context pairs into logrus fields. Child loggers
// accumulate context; the map used per write comes from a pool.
type logger struct {
	ctx     []interface{}
	mapPool sync.Pool
}

func (l *logger) New(ctx ...interface{}) Logger {
	child := &logger{
		ctx: append(append([]interface{}{}, l.ctx...), ctx...),
		mapPool: sync.Pool{
			New: func() any {
				return map[string]interface{}{}
			},
		},
	}
	return child
}

func (l *logger) write(msg string, lvl Lvl, ctx []interface{}, _ int) {
	fields := l.mapPool.Get().(map[string]interface{})
	defer func() {
		for k := range fields {
			delete(fields, k)
		}
		l.mapPool.Put(fields)
	}()

	appendPairs(fields, l.ctx)
	appendPairs(fields, ctx)

	entry := terminal.WithFields(fields)
	switch lvl {
	case LvlTrace:
		entry.Trace(msg)
	case LvlDebug:
		entry.Debug(msg)
	case LvlInfo:
		entry.Info(msg)
	case LvlWarn:
		entry.Warn(msg)
	case LvlError:
		entry.Error(msg)
	case LvlFatal, LvlCrit:
		entry.Error(msg)
	}
}

// appendPairs folds a flat k,v,k,v slice into fields. A trailing key with
// no value is recorded as MISSING to make the call site findable.
func appendPairs(fields map[string]interface{}, ctx []interface{}) {
	for i := 0; i+1 < len(ctx); i += 2 {
		key, ok := ctx[i].(string)
		if !ok {
			key = fmt.Sprint(ctx[i])
		}
		val := ctx[i+1]
		if ts, ok := val.(TerminalStringer); ok {
			val = ts.TerminalString()
		}
		fields[key] = val
	}
	if len(ctx)%2 == 1 {
		fields["MISSING"] = ctx[len(ctx)-1]
	}
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(msg, LvlTrace, ctx, skipLevel) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(msg, LvlDebug, ctx, skipLevel) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(msg, LvlInfo, ctx, skipLevel) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(msg, LvlWarn, ctx, skipLevel) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(msg, LvlError, ctx, skipLevel) }
func (l *logger) Crit(msg string, ctx ...interface{})  { l.write(msg, LvlCrit, ctx, skipLevel) }
