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

package jsonrpc

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/chainofclaw/COC-sub002/log"
)

// serviceRegistry resolves "namespace_methodName" to reflected methods.
type serviceRegistry struct {
	mu      sync.RWMutex
	methods map[string]*callback
}

type callback struct {
	receiver reflect.Value
	fn       reflect.Method
	argTypes []reflect.Type
	hasError bool
	hasValue bool
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

func newServiceRegistry() *serviceRegistry {
	return &serviceRegistry{methods: make(map[string]*callback)}
}

// register walks every exported method of the service and exposes it as
// namespace_firstLower(methodName).
func (r *serviceRegistry) register(namespace string, service interface{}) {
	rv := reflect.ValueOf(service)
	rt := rv.Type()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if method.PkgPath != "" {
			continue // unexported
		}
		cb := makeCallback(rv, method)
		if cb == nil {
			continue
		}
		name := namespace + "_" + firstLower(method.Name)
		r.methods[name] = cb
		log.Trace("RPC method registered", "name", name)
	}
}

// makeCallback validates the method shape: any JSON-decodable args, with
// an optional trailing error and at most one value return.
func makeCallback(receiver reflect.Value, method reflect.Method) *callback {
	mt := method.Type
	cb := &callback{receiver: receiver, fn: method}
	for i := 1; i < mt.NumIn(); i++ { // 0 is the receiver
		cb.argTypes = append(cb.argTypes, mt.In(i))
	}
	switch mt.NumOut() {
	case 0:
	case 1:
		if mt.Out(0) == errType {
			cb.hasError = true
		} else {
			cb.hasValue = true
		}
	case 2:
		if mt.Out(1) != errType {
			return nil
		}
		cb.hasValue = true
		cb.hasError = true
	default:
		return nil
	}
	return cb
}

// lookup resolves a method name.
func (r *serviceRegistry) lookup(name string) *callback {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.methods[name]
}

// call decodes params positionally and invokes the method. Missing
// trailing params decode as zero values; excess params are an error.
func (cb *callback) call(params []json.RawMessage) (interface{}, *Error) {
	if len(params) > len(cb.argTypes) {
		return nil, NewError(CodeInvalidParams, "too many parameters")
	}
	args := make([]reflect.Value, len(cb.argTypes)+1)
	args[0] = cb.receiver
	for i, at := range cb.argTypes {
		ptr := reflect.New(at)
		if i < len(params) && len(params[i]) > 0 && string(params[i]) != "null" {
			if err := json.Unmarshal(params[i], ptr.Interface()); err != nil {
				return nil, NewError(CodeInvalidParams, "invalid parameter "+err.Error())
			}
		}
		args[i+1] = ptr.Elem()
	}

	out := cb.fn.Func.Call(args)
	var result interface{}
	idx := 0
	if cb.hasValue {
		result = out[idx].Interface()
		idx++
	}
	if cb.hasError {
		if errVal := out[idx]; !errVal.IsNil() {
			err := errVal.Interface().(error)
			if rpcErr, ok := err.(*Error); ok {
				return nil, rpcErr
			}
			return nil, NewError(CodeInternalError, err.Error())
		}
	}
	return result, nil
}

func firstLower(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	// Only the first rune is lowered: ChainId -> chainId, ID -> iD.
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

// MethodNames lists registered methods (rpc_modules support).
func (r *serviceRegistry) methodNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.methods))
	for name := range r.methods {
		out = append(out, name)
	}
	return out
}

// namespaceOf splits a full method name.
func namespaceOf(method string) string {
	if i := strings.IndexByte(method, '_'); i > 0 {
		return method[:i]
	}
	return method
}
