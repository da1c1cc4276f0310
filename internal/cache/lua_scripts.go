package cache

import "github.com/redis/go-redis/v9"

// removeAlertScript deletes every cached notification whose alertId matches ARGV[1]
// and returns how many entries were removed. Entries that are not valid JSON are kept.
// Running server side keeps the scan and the removals atomic with respect to
// concurrent appends for the same user.
//
// IDs are compared as decimal strings taken from the raw entry: Lua numbers are
// doubles and cannot tell apart IDs above 2^53. alertId is the first field of an
// encoded notification, so the first match is the top-level one.
const removeAlertScript = `
	local key = KEYS[1]
	local target = ARGV[1]
	local entries = redis.call('LRANGE', key, 0, -1)
	local removed = 0

	for _, raw in ipairs(entries) do
		local ok, entry = pcall(cjson.decode, raw)
		if ok and type(entry) == 'table' and entry.alertId ~= nil then
			local id = string.match(raw, '"alertId"%s*:%s*"?(%-?%d+)"?%s*[,}]')
			if id == target then
				removed = removed + redis.call('LREM', key, 0, raw)
			end
		end
	end

	return removed
`

func newRemoveScript() *redis.Script {
	return redis.NewScript(removeAlertScript)
}
