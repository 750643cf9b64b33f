package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	// Chat
	&ChatSession{},
	&ChatContact{},
	&ChatMessage{},
}
