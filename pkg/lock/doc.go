// Package lock provides per-key mutual exclusion for serializing writes to a
// single subscription. The in-process MemoryLocker covers a single instance;
// RedisLocker extends the guarantee across instances with SET NX PX leases.
package lock
