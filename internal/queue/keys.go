package queue

import "fmt"

func QueueKey(queue string) string {
	return fmt.Sprintf("queue:%s", queue)
}

func PendingKey(queue string) string {
	return fmt.Sprintf("queue:%s:pending", queue)
}

func DeadlineKey(queue string) string {
	return fmt.Sprintf("queue:%s:deadlines", queue)
}
