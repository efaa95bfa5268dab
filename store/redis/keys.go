package redis

// Redis key naming conventions for hive data.
// All keys are prefixed with "hive:" to avoid collisions.

const keyPrefix = "hive:"

// taskKey returns the key for a task entity: hive:task:{id}
func taskKey(id string) string { return keyPrefix + "task:" + id }

// taskIDsKey is the Set tracking all task IDs for enumeration.
const taskIDsKey = keyPrefix + "task_ids"

// workerKey returns the key for a worker entity: hive:worker:{id}
func workerKey(id string) string { return keyPrefix + "worker:" + id }

// workerIDsKey is the Set tracking all worker IDs for enumeration.
const workerIDsKey = keyPrefix + "worker_ids"
