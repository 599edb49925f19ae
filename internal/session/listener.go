// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "github.com/jeranaias/webui-chat/internal/model"

// Listener receives exchange events. Each call gets a copy of the affected
// assistant message. Calls are serialized.
type Listener interface {
	OnFragment(msg model.Message, delta string)
	OnComplete(msg model.Message)
	OnError(msg model.Message, err error)
	OnAbort(msg model.Message)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	Fragment func(msg model.Message, delta string)
	Complete func(msg model.Message)
	Error    func(msg model.Message, err error)
	Abort    func(msg model.Message)
}

func (l ListenerFuncs) OnFragment(msg model.Message, delta string) {
	if l.Fragment != nil {
		l.Fragment(msg, delta)
	}
}

func (l ListenerFuncs) OnComplete(msg model.Message) {
	if l.Complete != nil {
		l.Complete(msg)
	}
}

func (l ListenerFuncs) OnError(msg model.Message, err error) {
	if l.Error != nil {
		l.Error(msg, err)
	}
}

func (l ListenerFuncs) OnAbort(msg model.Message) {
	if l.Abort != nil {
		l.Abort(msg)
	}
}
